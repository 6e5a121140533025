// Package config loads the ambient configuration every component in this
// repository reads at startup: environment variables first, with an
// optional YAML overlay for deployments that prefer a file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config groups every option the governance core recognizes.
type Config struct {
	Exploration ExplorationConfig `yaml:"exploration"`
	Submission  SubmissionConfig  `yaml:"submission"`
	Browser     BrowserConfig     `yaml:"browser"`
	Audit       AuditConfig       `yaml:"audit"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

type ExplorationConfig struct {
	MaxDepth        int            `yaml:"max_depth"`
	MaxBreadth      int            `yaml:"max_breadth"`
	MaxTimeSeconds  int            `yaml:"max_time_seconds"`
	MaxActions      int            `yaml:"max_actions"`
	MaxSubmissions  int            `yaml:"max_submissions"`
	Parallel        ParallelConfig `yaml:"parallel"`
}

type ParallelConfig struct {
	Workers int `yaml:"workers"`
}

type SubmissionConfig struct {
	ConfirmationTTLSeconds int `yaml:"confirmation_ttl_seconds"`
}

type BrowserConfig struct {
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	MaxObservations    int     `yaml:"max_observations"`
}

type AuditConfig struct {
	LogPath string `yaml:"log_path"`
}

type RateLimitConfig struct {
	Floor int `yaml:"floor"`
}

// Load builds a Config from environment variables, then — if overlayPath is
// non-empty — overlays a YAML file on top (file values win over env
// defaults).
func Load(overlayPath string) (*Config, error) {
	cfg := &Config{
		Exploration: ExplorationConfig{
			MaxDepth:       envInt("HUNT_EXPLORATION_MAX_DEPTH", 5),
			MaxBreadth:     envInt("HUNT_EXPLORATION_MAX_BREADTH", 10),
			MaxTimeSeconds: envInt("HUNT_EXPLORATION_MAX_TIME_SECONDS", 3600),
			MaxActions:     envInt("HUNT_EXPLORATION_MAX_ACTIONS", 500),
			MaxSubmissions: envInt("HUNT_EXPLORATION_MAX_SUBMISSIONS", 10),
			Parallel: ParallelConfig{
				Workers: envInt("HUNT_EXPLORATION_PARALLEL_WORKERS", 4),
			},
		},
		Submission: SubmissionConfig{
			ConfirmationTTLSeconds: envInt("HUNT_SUBMISSION_CONFIRMATION_TTL_SECONDS", 900),
		},
		Browser: BrowserConfig{
			DuplicateThreshold: envFloat("HUNT_BROWSER_DUPLICATE_THRESHOLD", 0.7),
			MaxObservations:    envInt("HUNT_BROWSER_MAX_OBSERVATIONS", 10000),
		},
		Audit: AuditConfig{
			LogPath: envString("HUNT_AUDIT_LOG_PATH", "./huntfabric-audit.db"),
		},
		RateLimit: RateLimitConfig{
			Floor: envInt("HUNT_RATE_LIMIT_FLOOR", 1),
		},
	}

	if overlayPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read overlay %q: %w", overlayPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse overlay %q: %w", overlayPath, err)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
