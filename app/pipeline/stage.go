// Package pipeline defines the per-article processing stages and the
// status vocabulary of each stage. Statuses are closed enums with explicit
// transition tables; the ledger rejects any transition not listed here.
package pipeline

import "fmt"

type Stage string

const (
	StageExtraction    Stage = "extraction"
	StageSummarization Stage = "summarization"
	StageDeepAnalysis  Stage = "deep_analysis"
)

func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageExtraction, StageSummarization, StageDeepAnalysis:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown stage: %q", s)
}

// ExtractionStatus tracks full-text retrieval for recognized paper articles.
type ExtractionStatus string

const (
	ExtractionNotApplicable ExtractionStatus = "not_applicable"
	ExtractionPending       ExtractionStatus = "pending"
	ExtractionProcessing    ExtractionStatus = "processing"
	ExtractionExtracted     ExtractionStatus = "extracted"
	ExtractionFailed        ExtractionStatus = "failed"
)

// SummaryStatus tracks the summarization pipeline for every article.
type SummaryStatus string

const (
	SummaryPendingContent SummaryStatus = "pending_content"
	SummaryPendingLLM     SummaryStatus = "pending_llm"
	SummaryProcessing     SummaryStatus = "processing"
	SummaryCompleted      SummaryStatus = "completed"
	SummaryError          SummaryStatus = "llm_error"
)

// AnalysisStatus tracks deep analysis, which is gated on a successful
// extraction.
type AnalysisStatus string

const (
	AnalysisNotRequested AnalysisStatus = "not_requested"
	AnalysisPending      AnalysisStatus = "pending"
	AnalysisProcessing   AnalysisStatus = "processing"
	AnalysisCompleted    AnalysisStatus = "completed"
	AnalysisFailed       AnalysisStatus = "failed"
)

// ContentShape classifies what extraction actually retrieved. Downstream
// prompt selection depends on it, so the heuristic's confidence is kept
// alongside the shape instead of pretending the boundary is exact.
type ContentShape string

const (
	ShapeFullDocument ContentShape = "full_document"
	ShapeAbstractOnly ContentShape = "abstract_only"
)

type ShapeConfidence string

const (
	ConfidenceHigh ShapeConfidence = "high"
	ConfidenceLow  ShapeConfidence = "low"
)

// Status names per stage, used by the ledger's compare-and-set
// statements. A claim is legal from PendingStatus, or from FailedStatus
// when the failure was recorded as retryable.
func (s Stage) PendingStatus() string {
	switch s {
	case StageExtraction:
		return string(ExtractionPending)
	case StageSummarization:
		return string(SummaryPendingLLM)
	case StageDeepAnalysis:
		return string(AnalysisPending)
	}
	return ""
}

func (s Stage) ProcessingStatus() string {
	switch s {
	case StageExtraction:
		return string(ExtractionProcessing)
	case StageSummarization:
		return string(SummaryProcessing)
	case StageDeepAnalysis:
		return string(AnalysisProcessing)
	}
	return ""
}

func (s Stage) CompletedStatus() string {
	switch s {
	case StageExtraction:
		return string(ExtractionExtracted)
	case StageSummarization:
		return string(SummaryCompleted)
	case StageDeepAnalysis:
		return string(AnalysisCompleted)
	}
	return ""
}

func (s Stage) FailedStatus() string {
	switch s {
	case StageExtraction:
		return string(ExtractionFailed)
	case StageSummarization:
		return string(SummaryError)
	case StageDeepAnalysis:
		return string(AnalysisFailed)
	}
	return ""
}
