package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/pipeline"
)

type mockLedger struct {
	article *database.Article

	completedContent    string
	completedShape      pipeline.ContentShape
	completedConfidence pipeline.ShapeConfidence
	completeCalls       int

	failReason    string
	failRetryable bool
	failCalls     int
}

func (m *mockLedger) Claim(int64, pipeline.Stage) (bool, error)       { return true, nil }
func (m *mockLedger) Eligible(pipeline.Stage, int) ([]int64, error)   { return nil, nil }
func (m *mockLedger) CompleteSummary(int64, string, string) error     { return nil }
func (m *mockLedger) CompleteAnalysis(int64, string, pipeline.ContentShape) error {
	return nil
}

func (m *mockLedger) CompleteExtraction(_ int64, content string, shape pipeline.ContentShape, confidence pipeline.ShapeConfidence) error {
	m.completeCalls++
	m.completedContent = content
	m.completedShape = shape
	m.completedConfidence = confidence
	return nil
}

func (m *mockLedger) Fail(_ int64, _ pipeline.Stage, reason string, retryable bool) error {
	m.failCalls++
	m.failReason = reason
	m.failRetryable = retryable
	return nil
}

func (m *mockLedger) GetArticle(int64) (*database.Article, error) {
	return m.article, nil
}

type mockFetcher struct {
	content string
	err     error
}

func (m *mockFetcher) Fetch(context.Context, string) (string, error) {
	return m.content, m.err
}

func paperArticle() *database.Article {
	return &database.Article{
		ID:               1,
		ArxivID:          "2401.00001",
		ExtractionStatus: pipeline.ExtractionProcessing,
	}
}

func TestProcessRecordsExtraction(t *testing.T) {
	body := strings.Repeat("Section text about the proposed method. ", 80) + "References"
	ledger := &mockLedger{article: paperArticle()}
	fetcher := &mockFetcher{content: body}

	p := NewProcessor(ledger, fetcher, 2000, 30*time.Second)
	if err := p.Process(context.Background(), 1); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if ledger.completeCalls != 1 {
		t.Fatalf("Expected 1 completion, got %d", ledger.completeCalls)
	}
	if ledger.completedContent != body {
		t.Error("Expected fetched content to be recorded")
	}
	if ledger.completedShape != pipeline.ShapeFullDocument {
		t.Errorf("Expected full_document shape, got %s", ledger.completedShape)
	}
	if ledger.completedConfidence != pipeline.ConfidenceHigh {
		t.Errorf("Expected high confidence, got %s", ledger.completedConfidence)
	}
}

func TestProcessNotFoundIsPermanent(t *testing.T) {
	ledger := &mockLedger{article: paperArticle()}
	fetcher := &mockFetcher{err: ErrNotFound}

	p := NewProcessor(ledger, fetcher, 2000, 30*time.Second)
	if err := p.Process(context.Background(), 1); err == nil {
		t.Fatal("Expected error for missing paper")
	}

	if ledger.failCalls != 1 {
		t.Fatalf("Expected 1 failure record, got %d", ledger.failCalls)
	}
	if ledger.failRetryable {
		t.Error("Expected not-found failure to be recorded as non-retryable")
	}
	if ledger.completeCalls != 0 {
		t.Error("Expected no completion after a failed fetch")
	}
}

func TestProcessTransientErrorIsRetryable(t *testing.T) {
	ledger := &mockLedger{article: paperArticle()}
	fetcher := &mockFetcher{err: context.DeadlineExceeded}

	p := NewProcessor(ledger, fetcher, 2000, 30*time.Second)
	if err := p.Process(context.Background(), 1); err == nil {
		t.Fatal("Expected error for failed fetch")
	}

	if !ledger.failRetryable {
		t.Error("Expected transient failure to be recorded as retryable")
	}
}

func TestProcessRejectsUnclassifiedArticle(t *testing.T) {
	article := paperArticle()
	article.ArxivID = ""
	ledger := &mockLedger{article: article}

	p := NewProcessor(ledger, &mockFetcher{content: "irrelevant"}, 2000, 30*time.Second)
	if err := p.Process(context.Background(), 1); err == nil {
		t.Fatal("Expected error for article without arXiv identifier")
	}

	if ledger.failCalls != 1 {
		t.Fatalf("Expected 1 failure record, got %d", ledger.failCalls)
	}
	if ledger.failRetryable {
		t.Error("Expected missing identifier to be non-retryable")
	}
}
