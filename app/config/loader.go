package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and validation of feed definition files
type Loader struct {
	feedsDir string
}

// NewLoader creates a new feed definition loader
func NewLoader(feedsDir string) *Loader {
	return &Loader{feedsDir: feedsDir}
}

// LoadAll loads all YAML definition files from the feeds directory
func (l *Loader) LoadAll() (map[string]*FeedDefinition, error) {
	definitions := make(map[string]*FeedDefinition)

	if _, err := os.Stat(l.feedsDir); os.IsNotExist(err) {
		return definitions, nil // No feeds directory means no subscriptions
	}

	files, err := filepath.Glob(filepath.Join(l.feedsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(l.feedsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		definition, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(definition); err != nil {
			return nil, fmt.Errorf("invalid definition %s: %w", file, err)
		}

		definitions[file] = definition
		slog.Debug("Loaded feed definition", "file", file, "url", definition.Feed.URL)
	}

	return definitions, nil
}

// loadFile loads a single YAML definition file
func (l *Loader) loadFile(path string) (*FeedDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var definition FeedDefinition
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.setDefaults(&definition)

	return &definition, nil
}

// setDefaults applies default values to a definition
func (l *Loader) setDefaults(definition *FeedDefinition) {
	if definition.Settings.PollIntervalMinutes == 0 {
		definition.Settings.PollIntervalMinutes = 60
	}
	if definition.Settings.MaxArticles == 0 {
		definition.Settings.MaxArticles = 100
	}
}

// validate validates a feed definition
func (l *Loader) validate(definition *FeedDefinition) error {
	if definition.Feed.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if definition.Feed.Name == "" {
		return fmt.Errorf("feed name is required")
	}

	if definition.Settings.PollIntervalMinutes < 0 {
		return fmt.Errorf("poll interval must be non-negative")
	}
	if definition.Settings.MaxArticles < 0 {
		return fmt.Errorf("max articles must be non-negative")
	}

	return nil
}
