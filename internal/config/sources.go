package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// FeedsConfig describes all article sources. Unknown or empty sections are
// permitted; a source name maps to one or more endpoints of its kind.
type FeedsConfig struct {
	RSS           map[string][]string   `mapstructure:"rss"`
	Sitemaps      map[string][]string   `mapstructure:"sitemaps"`
	HTML          map[string]HTMLSource `mapstructure:"html"`
	JSON          map[string]JSONSource `mapstructure:"json"`
	AdditionalRSS map[string][]string   `mapstructure:"additional_rss"`
	GoogleNewsRSS []string              `mapstructure:"google_news_rss"`
}

// HTMLSource is a listing page scraped with CSS selectors.
type HTMLSource struct {
	URL       string        `mapstructure:"url"`
	Selectors HTMLSelectors `mapstructure:"selectors"`
}

// HTMLSelectors locates items and their fields on a listing page.
// HiddenURL, when set, points at an attribute-carrying child instead of the
// item's own href.
type HTMLSelectors struct {
	Item      string `mapstructure:"item"`
	Title     string `mapstructure:"title"`
	Date      string `mapstructure:"date"`
	HiddenURL string `mapstructure:"hidden_url"`
}

// JSONSource is a JSON API with a dotted path to the item array and
// per-field extractors.
type JSONSource struct {
	URL      string     `mapstructure:"url"`
	ItemPath string     `mapstructure:"item_path"`
	Fields   JSONFields `mapstructure:"fields"`
}

// JSONFields names the item keys carrying each candidate field.
type JSONFields struct {
	URL         string `mapstructure:"url"`
	Title       string `mapstructure:"title"`
	PublishedAt string `mapstructure:"published_at"`
}

// LoadFeeds reads the feed-sources file.
func LoadFeeds(path string) (*FeedsConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read feeds config %s: %w", path, err)
	}

	var feeds FeedsConfig
	if err := v.Unmarshal(&feeds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feeds config: %w", err)
	}
	return &feeds, nil
}

// TopicsConfig maps topic name to its settings.
type TopicsConfig struct {
	Topics map[string]TopicConfig `mapstructure:"topics"`
}

// TopicConfig holds the relevance domain for one topic.
type TopicConfig struct {
	Enabled             bool                 `mapstructure:"enabled"`
	Description         string               `mapstructure:"description"`
	Include             []string             `mapstructure:"include"`
	ConfidenceThreshold float64              `mapstructure:"confidence_threshold"`
	MaxArticlesPerRun   int                  `mapstructure:"max_articles_per_run"`
	MaxArticleAgeDays   int                  `mapstructure:"max_article_age_days"`
	SkipPrefilter       bool                 `mapstructure:"skip_prefilter"`
	FocusAreas          map[string]FocusArea `mapstructure:"focus_areas"`
	Thresholds          TopicThresholds      `mapstructure:"thresholds"`
}

// FocusArea is a weighted keyword group inside a topic.
type FocusArea struct {
	Keywords []string `mapstructure:"keywords"`
	Priority int      `mapstructure:"priority"`
}

// TopicThresholds holds secondary cutoffs for a topic.
type TopicThresholds struct {
	EarlyTerminationAt int `mapstructure:"early_termination_at"`
}

// LoadTopics reads the topics file and drops disabled topics.
func LoadTopics(path string) (*TopicsConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read topics config %s: %w", path, err)
	}

	var topics TopicsConfig
	if err := v.Unmarshal(&topics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topics config: %w", err)
	}

	for name, t := range topics.Topics {
		if !t.Enabled {
			delete(topics.Topics, name)
			continue
		}
		if t.ConfidenceThreshold == 0 {
			t.ConfidenceThreshold = 0.70
			topics.Topics[name] = t
		}
	}
	return &topics, nil
}
