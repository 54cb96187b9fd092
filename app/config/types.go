package config

// FeedDefinition is an operator-authored description of one subscription.
type FeedDefinition struct {
	Feed     FeedInfo     `yaml:"feed"`
	Settings FeedSettings `yaml:"settings"`
}

// FeedInfo contains basic feed information
type FeedInfo struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// FeedSettings contains per-feed polling settings
type FeedSettings struct {
	Enabled             bool `yaml:"enabled"`
	PollIntervalMinutes int  `yaml:"poll_interval_minutes"`
	MaxArticles         int  `yaml:"max_articles"`
}
