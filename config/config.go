// Package config provides configuration loading and management for ontowatch.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/ontowatch/notify"
	"github.com/c360studio/ontowatch/vocabulary/bibframe"
)

// Config represents the complete ontowatch configuration
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Repo    RepoConfig    `yaml:"repo"`
	Sync    SyncConfig    `yaml:"sync"`
	History HistoryConfig `yaml:"history"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// SourceConfig configures the published ontology document
type SourceConfig struct {
	// URL is where the document is published
	URL string `yaml:"url"`
	// OntologyIRI is the subject carrying the modification date
	OntologyIRI string `yaml:"ontology_iri"`
	// DatePredicate is the predicate of the modification date
	DatePredicate string `yaml:"date_predicate"`
	// Timeout bounds a single fetch
	Timeout time.Duration `yaml:"timeout"`
}

// RepoConfig configures the working copy snapshots are committed to
type RepoConfig struct {
	// Path is the working copy root (auto-detected from git if empty)
	Path string `yaml:"path"`
	// URL is cloned into Path when Path is not a working copy yet
	URL string `yaml:"url"`
	// SnapshotDir is the directory of the stored serializations inside Path
	SnapshotDir string `yaml:"snapshot_dir"`
	// BaseName is the file name shared by the stored serializations
	BaseName      string `yaml:"base_name"`
	AuthorName    string `yaml:"author_name"`
	AuthorEmail   string `yaml:"author_email"`
	CommitMessage string `yaml:"commit_message"`
	// Pull fast-forwards before each cycle (default: true)
	Pull *bool `yaml:"pull,omitempty"`
	// Push publishes each update commit (default: true)
	Push *bool `yaml:"push,omitempty"`
}

// SyncConfig configures the scheduled sync loop
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	// CycleTimeout bounds one cycle (0 = unbounded)
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
	// MetricsAddr serves Prometheus metrics when set (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr"`
}

// HistoryConfig configures history mining
type HistoryConfig struct {
	// RepoURL is the repository whose history is mined
	RepoURL string `yaml:"repo_url"`
	// File is the N-Triples file inside the repository
	File      string `yaml:"file"`
	DataFile  string `yaml:"data_file"`
	GnuFile   string `yaml:"gnu_file"`
	GraphFile string `yaml:"graph_file"`
}

// NotifyConfig configures update notifications
type NotifyConfig struct {
	// NATSURL enables NATS notifications when set
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:           bibframe.SourceURL,
			OntologyIRI:   bibframe.OntologyIRI,
			DatePredicate: bibframe.DCTermsModified,
			Timeout:       2 * time.Minute,
		},
		Repo: RepoConfig{
			Path:          "", // Auto-detect
			SnapshotDir:   "BF2specs",
			BaseName:      "bibframe2",
			AuthorName:    "ontowatch",
			AuthorEmail:   "ontowatch@localhost",
			CommitMessage: "Update BIBFRAME 2.0 ontology to version of %s",
			Pull:          boolPtr(true),
			Push:          boolPtr(true),
		},
		Sync: SyncConfig{
			Interval:     24 * time.Hour,
			CycleTimeout: 15 * time.Minute,
		},
		History: HistoryConfig{
			RepoURL:   "https://github.com/cmh2166/BF2.git",
			File:      "BF2specs/bibframe2.nt",
			DataFile:  "BF2_triples_changes.dat",
			GnuFile:   "BF2_triples_changes.gnu",
			GraphFile: "BF2_triples_changes.png",
		},
		Notify: NotifyConfig{
			Subject: notify.DefaultSubject,
		},
	}
}

// PullEnabled reports whether the working copy is pulled before each cycle.
func (r RepoConfig) PullEnabled() bool {
	return r.Pull == nil || *r.Pull
}

// PushEnabled reports whether update commits are pushed.
func (r RepoConfig) PushEnabled() bool {
	return r.Push == nil || *r.Push
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Source.URL)
	if c.Source.URL == "" || err != nil {
		return fmt.Errorf("source.url is required")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source.url must be http or https, got %q", c.Source.URL)
	}
	if c.Source.OntologyIRI == "" {
		return fmt.Errorf("source.ontology_iri is required")
	}
	if c.Source.DatePredicate == "" {
		return fmt.Errorf("source.date_predicate is required")
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive")
	}

	if c.Repo.BaseName == "" || strings.ContainsAny(c.Repo.BaseName, `/\`) {
		return fmt.Errorf("repo.base_name must be a plain file name")
	}
	if filepath.IsAbs(c.Repo.SnapshotDir) || strings.HasPrefix(filepath.Clean(c.Repo.SnapshotDir), "..") {
		return fmt.Errorf("repo.snapshot_dir must be relative to the working copy")
	}
	if c.Repo.AuthorName == "" || c.Repo.AuthorEmail == "" {
		return fmt.Errorf("repo.author_name and repo.author_email are required")
	}
	if strings.Count(c.Repo.CommitMessage, "%s") != 1 {
		return fmt.Errorf("repo.commit_message must contain exactly one %%s")
	}

	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.CycleTimeout < 0 {
		return fmt.Errorf("sync.cycle_timeout must not be negative")
	}

	if c.History.File == "" {
		return fmt.Errorf("history.file is required")
	}
	if c.History.DataFile == "" || c.History.GnuFile == "" || c.History.GraphFile == "" {
		return fmt.Errorf("history output files are required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// loadLayer reads a YAML file without defaults so unset keys stay zero and
// do not override earlier layers on Merge.
func loadLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Source
	mergeString(&c.Source.URL, other.Source.URL)
	mergeString(&c.Source.OntologyIRI, other.Source.OntologyIRI)
	mergeString(&c.Source.DatePredicate, other.Source.DatePredicate)
	if other.Source.Timeout != 0 {
		c.Source.Timeout = other.Source.Timeout
	}

	// Repo
	mergeString(&c.Repo.Path, other.Repo.Path)
	mergeString(&c.Repo.URL, other.Repo.URL)
	mergeString(&c.Repo.SnapshotDir, other.Repo.SnapshotDir)
	mergeString(&c.Repo.BaseName, other.Repo.BaseName)
	mergeString(&c.Repo.AuthorName, other.Repo.AuthorName)
	mergeString(&c.Repo.AuthorEmail, other.Repo.AuthorEmail)
	mergeString(&c.Repo.CommitMessage, other.Repo.CommitMessage)
	if other.Repo.Pull != nil {
		c.Repo.Pull = boolPtr(*other.Repo.Pull)
	}
	if other.Repo.Push != nil {
		c.Repo.Push = boolPtr(*other.Repo.Push)
	}

	// Sync
	if other.Sync.Interval != 0 {
		c.Sync.Interval = other.Sync.Interval
	}
	if other.Sync.CycleTimeout != 0 {
		c.Sync.CycleTimeout = other.Sync.CycleTimeout
	}
	mergeString(&c.Sync.MetricsAddr, other.Sync.MetricsAddr)

	// History
	mergeString(&c.History.RepoURL, other.History.RepoURL)
	mergeString(&c.History.File, other.History.File)
	mergeString(&c.History.DataFile, other.History.DataFile)
	mergeString(&c.History.GnuFile, other.History.GnuFile)
	mergeString(&c.History.GraphFile, other.History.GraphFile)

	// Notify
	mergeString(&c.Notify.NATSURL, other.Notify.NATSURL)
	mergeString(&c.Notify.Subject, other.Notify.Subject)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func boolPtr(b bool) *bool {
	return &b
}
