package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"data/paperstream.db" description:"Path to the SQLite database file"`

	// Application configuration
	FeedsDir          string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed definition files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for task processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Batch processing configuration
	BatchSize          int     `long:"batch-size" env:"BATCH_SIZE" default:"10" description:"Default number of articles per processing batch"`
	StageConcurrency   int     `long:"stage-concurrency" env:"STAGE_CONCURRENCY" default:"3" description:"Concurrent workers per stage batch"`
	MaxStageAttempts   int     `long:"max-stage-attempts" env:"MAX_STAGE_ATTEMPTS" default:"3" description:"Attempts before a retryable stage failure stops being selected"`
	FailureRateWindow  int     `long:"failure-rate-window" env:"FAILURE_RATE_WINDOW" default:"20" description:"Number of recent attempts considered by the continuous-mode failure guard"`
	FailureRateTrip    float64 `long:"failure-rate-trip" env:"FAILURE_RATE_TRIP" default:"0.5" description:"Failure fraction that aborts a continuous run"`
	CallTimeoutSeconds int     `long:"call-timeout" env:"CALL_TIMEOUT" default:"30" description:"Per-call timeout for external requests in seconds"`

	// LLM configuration
	OpenAIAPIKey      string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key (LLM stages disabled when empty)"`
	OpenAIModel       string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o" description:"OpenAI model for summarization and analysis"`
	SummaryMaxTokens  int    `long:"summary-max-tokens" env:"SUMMARY_MAX_TOKENS" default:"150" description:"Token budget for article summaries"`
	AnalysisMaxTokens int    `long:"analysis-max-tokens" env:"ANALYSIS_MAX_TOKENS" default:"1000" description:"Token budget for deep analysis"`

	// Extraction configuration
	FullDocumentThreshold int `long:"full-document-threshold" env:"FULL_DOCUMENT_THRESHOLD" default:"2000" description:"Minimum character count for full-document classification"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"paperstream/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:                raw.DBPath,
		FeedsDir:              raw.FeedsDir,
		Port:                  raw.Port,
		WorkerCount:           raw.WorkerCount,
		SchedulerInterval:     raw.SchedulerInterval,
		APIAccessKey:          raw.APIAccessKey,
		BatchSize:             raw.BatchSize,
		StageConcurrency:      raw.StageConcurrency,
		MaxStageAttempts:      raw.MaxStageAttempts,
		FailureRateWindow:     raw.FailureRateWindow,
		FailureRateTrip:       raw.FailureRateTrip,
		CallTimeoutSeconds:    raw.CallTimeoutSeconds,
		OpenAIAPIKey:          raw.OpenAIAPIKey,
		OpenAIModel:           raw.OpenAIModel,
		SummaryMaxTokens:      raw.SummaryMaxTokens,
		AnalysisMaxTokens:     raw.AnalysisMaxTokens,
		FullDocumentThreshold: raw.FullDocumentThreshold,
		UserAgent:             raw.UserAgent,
		Debug:                 raw.Debug,
		Version:               GetVersion(),
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}
