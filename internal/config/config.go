package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the persistent settings for the archive. It is stored as an
// indented JSON file so a site administrator can edit it by hand.
type Config struct {
	StorageDir    string `json:"storage_dir"`
	DatabaseDir   string `json:"database_dir"`
	QueueDir      string `json:"queue_dir"`
	TempDir       string `json:"temp_dir"`
	QuarantineDir string `json:"quarantine_dir"`

	// SiteID scopes every anonymized patient identity; it is minted on first
	// run and must never change for a populated archive.
	SiteID  string `json:"site_id"`
	UIDRoot string `json:"uid_root"`

	RejectSR          bool   `json:"reject_structured_reports"`
	RejectSC          bool   `json:"reject_secondary_capture"`
	AcceptReformatted bool   `json:"accept_reformatted"`
	FilterScript      string `json:"filter_script"`
	SaveRejected      bool   `json:"save_rejected"`

	MinFileAgeSeconds   int `json:"min_file_age_seconds"`
	PollIntervalSeconds int `json:"poll_interval_seconds"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// Default returns the configuration used when no file exists, with every
// directory rooted under dir.
func Default(dir string) Config {
	return Config{
		StorageDir:          filepath.Join(dir, "storage"),
		DatabaseDir:         filepath.Join(dir, "db"),
		QueueDir:            filepath.Join(dir, "queue"),
		TempDir:             filepath.Join(dir, "temp"),
		QuarantineDir:       filepath.Join(dir, "quarantine"),
		UIDRoot:             "1.2.840.99999999",
		RejectSR:            true,
		RejectSC:            true,
		AcceptReformatted:   true,
		MinFileAgeSeconds:   5,
		PollIntervalSeconds: 2,
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Load reads the configuration file at path, creating it with defaults on
// first run. A missing SiteID is minted from the current time in minutes
// (last six digits) and persisted, so restarts keep the same site identity.
func Load(path string) (Config, error) {
	cfg := Default(filepath.Dir(path))

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("could not parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// First run; fall through and persist the defaults below.
	default:
		return Config{}, fmt.Errorf("could not read config %s: %w", path, err)
	}

	changed := err != nil
	if cfg.SiteID == "" {
		cfg.SiteID = mintSiteID()
		changed = true
	}
	if changed {
		if err := cfg.Save(path); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Save writes the configuration back to disk.
func (c Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}
	return nil
}

// EnsureDirs creates every working directory the archive needs.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.StorageDir, c.DatabaseDir, c.QueueDir, c.TempDir, c.QuarantineDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create %s: %w", dir, err)
		}
	}
	return nil
}

// MinFileAge returns the queue eligibility threshold as a duration.
func (c Config) MinFileAge() time.Duration {
	return time.Duration(c.MinFileAgeSeconds) * time.Second
}

// PollInterval returns the queue worker poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func mintSiteID() string {
	s := fmt.Sprintf("%d", time.Now().Unix()/60)
	if len(s) > 6 {
		s = s[len(s)-6:]
	}
	return s
}
