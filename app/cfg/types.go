package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	FeedsDir          string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Batch processing configuration
	BatchSize          int
	StageConcurrency   int
	MaxStageAttempts   int
	FailureRateWindow  int
	FailureRateTrip    float64
	CallTimeoutSeconds int

	// LLM configuration
	OpenAIAPIKey      string
	OpenAIModel       string
	SummaryMaxTokens  int
	AnalysisMaxTokens int

	// Extraction configuration
	FullDocumentThreshold int

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
