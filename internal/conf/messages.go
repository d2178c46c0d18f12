package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/merchantbot/merchantbot/internal/biz/usecase"
	"github.com/merchantbot/merchantbot/internal/service"
)

// MessagesConfig contains all user-facing texts loaded from YAML
type MessagesConfig struct {
	Notify  NotifyMessages `yaml:"notify"`
	Replies ReplyMessages  `yaml:"replies"`
}

// NotifyMessages contains tracker notification texts
type NotifyMessages struct {
	SummaryTitle       string `yaml:"summary_title"`
	SummaryDescription string `yaml:"summary_description"`
	ItemHint           string `yaml:"item_hint"`
	ParamsField        string `yaml:"params_field"`
	SummaryColor       int    `yaml:"summary_color"`
	ItemColor          int    `yaml:"item_color"`
}

// ReplyMessages contains command reply texts
type ReplyMessages struct {
	NoResults         string `yaml:"no_results"`
	SearchHeader      string `yaml:"search_header"`
	QueryCreated      string `yaml:"query_created"`
	QueryDeleted      string `yaml:"query_deleted"`
	TrackingEnabled   string `yaml:"tracking_enabled"`
	TrackingDisabled  string `yaml:"tracking_disabled"`
	NoQueries         string `yaml:"no_queries"`
	NoTrackedQueries  string `yaml:"no_tracked_queries"`
	CheckCompleted    string `yaml:"check_completed"`
	CheckBusy         string `yaml:"check_busy"`
	PermissionDenied  string `yaml:"permission_denied"`
	QuotaExceeded     string `yaml:"quota_exceeded"`
	DuplicateName     string `yaml:"duplicate_name"`
	DuplicateKeyword  string `yaml:"duplicate_keyword"`
	QueryNotFound     string `yaml:"query_not_found"`
	ItemNotFound      string `yaml:"item_not_found"`
	InvalidInput      string `yaml:"invalid_input"`
	MarketplaceFailed string `yaml:"marketplace_failed"`
	Generic           string `yaml:"generic"`
}

// LoadMessagesConfig loads messages configuration from YAML file
func LoadMessagesConfig(configPath string) (*MessagesConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/messages.yaml",
			"/etc/merchantbot/messages.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "messages.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	var err error

	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			loadedPath = p
			break
		}
	}

	if data == nil {
		log.Println("[Config] No messages.yaml found, using defaults")
		return DefaultMessagesConfig(), nil
	}

	log.Printf("[Config] Loading messages from: %s", loadedPath)

	var config MessagesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse messages.yaml: %w", err)
	}

	// Fill in defaults for empty values
	config.fillDefaults()

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *MessagesConfig) fillDefaults() {
	d := DefaultMessagesConfig()

	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}

	fill(&c.Notify.SummaryTitle, d.Notify.SummaryTitle)
	fill(&c.Notify.SummaryDescription, d.Notify.SummaryDescription)
	fill(&c.Notify.ItemHint, d.Notify.ItemHint)
	fill(&c.Notify.ParamsField, d.Notify.ParamsField)
	if c.Notify.SummaryColor == 0 {
		c.Notify.SummaryColor = d.Notify.SummaryColor
	}
	if c.Notify.ItemColor == 0 {
		c.Notify.ItemColor = d.Notify.ItemColor
	}

	r, dr := &c.Replies, d.Replies
	fill(&r.NoResults, dr.NoResults)
	fill(&r.SearchHeader, dr.SearchHeader)
	fill(&r.QueryCreated, dr.QueryCreated)
	fill(&r.QueryDeleted, dr.QueryDeleted)
	fill(&r.TrackingEnabled, dr.TrackingEnabled)
	fill(&r.TrackingDisabled, dr.TrackingDisabled)
	fill(&r.NoQueries, dr.NoQueries)
	fill(&r.NoTrackedQueries, dr.NoTrackedQueries)
	fill(&r.CheckCompleted, dr.CheckCompleted)
	fill(&r.CheckBusy, dr.CheckBusy)
	fill(&r.PermissionDenied, dr.PermissionDenied)
	fill(&r.QuotaExceeded, dr.QuotaExceeded)
	fill(&r.DuplicateName, dr.DuplicateName)
	fill(&r.DuplicateKeyword, dr.DuplicateKeyword)
	fill(&r.QueryNotFound, dr.QueryNotFound)
	fill(&r.ItemNotFound, dr.ItemNotFound)
	fill(&r.InvalidInput, dr.InvalidInput)
	fill(&r.MarketplaceFailed, dr.MarketplaceFailed)
	fill(&r.Generic, dr.Generic)
}

// DefaultMessagesConfig returns the default messages configuration
func DefaultMessagesConfig() *MessagesConfig {
	n, r := usecase.DefaultNotifyTemplates, service.DefaultReplyTexts
	return &MessagesConfig{
		Notify: NotifyMessages{
			SummaryTitle:       n.SummaryTitle,
			SummaryDescription: n.SummaryDescription,
			ItemHint:           n.ItemHint,
			ParamsField:        n.ParamsField,
			SummaryColor:       n.SummaryColor,
			ItemColor:          n.ItemColor,
		},
		Replies: ReplyMessages(r),
	}
}

// ToNotifyTemplates converts to notification templates
func (c *MessagesConfig) ToNotifyTemplates() usecase.NotifyTemplates {
	return usecase.NotifyTemplates{
		SummaryTitle:       c.Notify.SummaryTitle,
		SummaryDescription: c.Notify.SummaryDescription,
		ItemHint:           c.Notify.ItemHint,
		ParamsField:        c.Notify.ParamsField,
		SummaryColor:       c.Notify.SummaryColor,
		ItemColor:          c.Notify.ItemColor,
	}
}

// ToReplyTexts converts to command reply texts
func (c *MessagesConfig) ToReplyTexts() service.ReplyTexts {
	return service.ReplyTexts(c.Replies)
}
