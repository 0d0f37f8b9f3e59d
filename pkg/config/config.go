// Package config provides configuration loading and management for dmriqc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Extraction parameters
	Extraction struct {
		// B0Cutoff is the b-value below or at which a volume counts as b=0
		B0Cutoff float64 `yaml:"b0Cutoff"`

		// BValRoundUnit is the multiple b-values are rounded to when
		// classifying volumes into shells
		BValRoundUnit float64 `yaml:"bvalRoundUnit"`

		// MinMaskVoxels is the minimum number of masked voxels an excitation
		// must cover to contribute to slice-to-volume variance
		MinMaskVoxels int `yaml:"minMaskVoxels"`

		// CNRDecimals is the number of decimal places CNR summaries are
		// rounded to
		CNRDecimals int `yaml:"cnrDecimals"`

		// OutputName is the name of the per-subject QC record file
		OutputName string `yaml:"outputName"`
	} `yaml:"extraction"`

	// Group aggregation parameters
	Group struct {
		// DatabaseName is the SQLite database file written by the group command
		DatabaseName string `yaml:"databaseName"`

		// SummaryName is the JSON summary file written alongside the database
		SummaryName string `yaml:"summaryName"`
	} `yaml:"group"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default extraction parameters
	cfg.Extraction.B0Cutoff = 100
	cfg.Extraction.BValRoundUnit = 100
	cfg.Extraction.MinMaskVoxels = 240
	cfg.Extraction.CNRDecimals = 2
	cfg.Extraction.OutputName = "qc.json"

	// Set default group parameters
	cfg.Group.DatabaseName = "group.db"
	cfg.Group.SummaryName = "group_db.json"

	// Set default output parameters
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
