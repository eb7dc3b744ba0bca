// Package config provides configuration loading, validation, and defaults
// for the Ironpost daemon and CLI.
//
// Configuration file: /etc/ironpost/config.toml (default)
//
// Precedence (highest first): environment variables
// (IRONPOST_<SECTION>_<FIELD>) > config file > built-in defaults. Load
// applies no command-line flag overrides; flags only select the file.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (timeouts, thresholds). Channel capacities
//     are fixed in internal/channelfabric and are not configurable.
//   - File paths must be absolute.
//   - Invalid config on startup: daemon refuses to start (fatal error).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure for Ironpost.
// All fields have defaults; see Defaults() for values.
type Config struct {
	General     GeneralConfig     `toml:"general"`
	EBPF        EBPFConfig        `toml:"ebpf"`
	LogPipeline LogPipelineConfig `toml:"log_pipeline"`
	Container   ContainerConfig   `toml:"container"`
	SBOM        SBOMConfig        `toml:"sbom"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

// GeneralConfig holds daemon-wide operational parameters.
type GeneralConfig struct {
	// NodeID identifies this host in logs and alerts. Default: hostname.
	NodeID string `toml:"node_id"`

	// PIDFile is the path to the daemon's PID file, acquired with
	// create-exclusive semantics at startup (spec.md §4.3 step 1).
	// Default: /run/ironpost/ironpostd.pid.
	PIDFile string `toml:"pid_file"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `toml:"log_level"`

	// LogFormat controls the log output encoding (json, console).
	// Default: json.
	LogFormat string `toml:"log_format"`

	// OperatorSocketPath is the Unix domain socket the CLI connects to for
	// override commands. Permissions: 0600. Default: /run/ironpost/operator.sock.
	OperatorSocketPath string `toml:"operator_socket_path"`

	// ShutdownGracePeriod bounds stop_all() across all plugins.
	// Default: 20s.
	ShutdownGracePeriod time.Duration `toml:"shutdown_grace_period"`
}

// EBPFConfig holds packet-capture plugin parameters.
type EBPFConfig struct {
	// Enabled controls whether the eBPF/XDP packet-capture plugin runs.
	// Default: true.
	Enabled bool `toml:"enabled"`

	// Interface is the network interface XDP attaches to. Default: eth0.
	Interface string `toml:"interface"`

	// RingBufferSizeBytes is the eBPF ring buffer reader's buffer size.
	// Must be a power of two. Default: 1 << 20 (1 MiB).
	RingBufferSizeBytes int `toml:"ring_buffer_size_bytes"`
}

// LogPipelineConfig holds log-pipeline detection engine parameters.
type LogPipelineConfig struct {
	// Enabled controls whether the log-pipeline plugin runs. Default: true.
	Enabled bool `toml:"enabled"`

	// RulesDir is the directory of one-rule-per-file YAML rules.
	// Default: /etc/ironpost/rules.d.
	RulesDir string `toml:"rules_dir"`

	// SourcePath is the raw log source the pipeline reads lines from. A
	// named FIFO is expected at this path (fed by rsyslog's omprog/omfwd
	// or an equivalent forwarder) — the orchestrator opens it for reading
	// and blocks until a writer connects. "-" reads from stdin instead,
	// for local/foreground runs. Default: /run/ironpost/logpipeline.pipe.
	SourcePath string `toml:"source_path"`

	// MaxLineBytes caps raw input line length (spec.md §4.4). Default: 65536.
	MaxLineBytes int `toml:"max_line_bytes"`

	// MaxJSONDepth caps JSON nesting depth (spec.md §4.4). Default: 32.
	MaxJSONDepth int `toml:"max_json_depth"`

	// ThresholdCounterCap bounds the live ThresholdCounter set (spec.md §3).
	// Default: 100000.
	ThresholdCounterCap int `toml:"threshold_counter_cap"`

	Alerts AlertsConfig `toml:"alerts"`

	Storage LogStorageConfig `toml:"storage"`
}

// LogStorageConfig holds the optional alert audit ledger's parameters
// (the `[log_pipeline.storage]` section).
type LogStorageConfig struct {
	// Enabled controls whether emitted alerts are persisted to the ledger.
	// Default: true.
	Enabled bool `toml:"enabled"`

	// DBPath is the bbolt ledger file path.
	// Default: /var/lib/ironpost/alert_ledger.db.
	DBPath string `toml:"db_path"`

	// RetentionDays bounds how long ledger entries are kept before pruning.
	// Default: 30.
	RetentionDays int `toml:"retention_days"`
}

// AlertsConfig holds the alert generator's dedup/rate-limit parameters.
type AlertsConfig struct {
	// DedupWindow is the minimum interval between alerts sharing a dedup
	// key (spec.md §4.4). Default: 5m.
	DedupWindow time.Duration `toml:"dedup_window"`

	// RateLimitPerMinute caps alerts per rate-limit key per minute.
	// Default: 60.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`

	// EvictionInterval is the time-based (not tick-based) cleanup period
	// for expired dedup/rate-limit entries. Default: 1m.
	EvictionInterval time.Duration `toml:"eviction_interval"`
}

// ContainerConfig holds container-guard parameters.
type ContainerConfig struct {
	// Enabled controls whether the container-guard plugin runs.
	// When false, the orchestrator spawns a drain task on the alert
	// channel instead (spec.md §4.3 step 4). Default: true.
	Enabled bool `toml:"enabled"`

	// PolicyDir is the directory of .toml policy files (spec.md §4.5).
	// Default: /etc/ironpost/policies.d.
	PolicyDir string `toml:"policy_dir"`

	// MaxPolicyFileBytes caps each policy file's size. Default: 10485760 (10MiB).
	MaxPolicyFileBytes int64 `toml:"max_policy_file_bytes"`

	// MaxPolicies caps the loaded policy count. Default: 1000.
	MaxPolicies int `toml:"max_policies"`

	// DockerHost is the Docker daemon endpoint. Default: unix:///var/run/docker.sock.
	DockerHost string `toml:"docker_host"`

	Executor ExecutorConfig `toml:"executor"`

	// ContainerCacheTTL bounds how long cached ContainerInfo entries are
	// trusted before re-inspection. Default: 30s.
	ContainerCacheTTL time.Duration `toml:"container_cache_ttl"`

	// MaxCachedContainers bounds the container info cache (spec.md §3).
	// Default: 10000.
	MaxCachedContainers int `toml:"max_cached_containers"`
}

// ExecutorConfig holds the isolation executor's retry/timeout parameters.
type ExecutorConfig struct {
	// MaxAttempts bounds retries per isolation action (spec.md §4.6).
	// Default: 3.
	MaxAttempts int `toml:"max_attempts"`

	// RetryBackoff is the linear (not exponential) backoff step between
	// attempts. Default: 2s.
	RetryBackoff time.Duration `toml:"retry_backoff"`

	// AttemptTimeout bounds each individual attempt. Default: 10s.
	AttemptTimeout time.Duration `toml:"attempt_timeout"`
}

// SBOMConfig holds SBOM/CVE scanner parameters.
type SBOMConfig struct {
	// Enabled controls whether the SBOM scanner plugin runs. Default: true.
	Enabled bool `toml:"enabled"`

	// LockfileGlobs are the glob patterns scanned for lockfiles.
	// Default: ["/var/lib/ironpost/targets/**/package-lock.json", "**/go.sum"].
	LockfileGlobs []string `toml:"lockfile_globs"`

	// VulnIndexPath is the bbolt vulnerability index file path.
	// Default: /var/lib/ironpost/vulnindex.db.
	VulnIndexPath string `toml:"vuln_index_path"`

	// ScanInterval is the period between full scan passes. Default: 1h.
	ScanInterval time.Duration `toml:"scan_interval"`

	// AlertSeverityFloor is the minimum finding severity that generates an
	// AlertEvent. Default: high.
	AlertSeverityFloor string `toml:"alert_severity_floor"`
}

// MetricsConfig holds the Prometheus facade's parameters.
type MetricsConfig struct {
	// Enabled controls whether the /metrics HTTP endpoint is served.
	// Default: true.
	Enabled bool `toml:"enabled"`

	// ListenAddr is the Prometheus exposition bind address. Bound to
	// localhost by default — never exposed without an explicit operator
	// opt-in. Default: 127.0.0.1:9191.
	ListenAddr string `toml:"listen_addr"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		General: GeneralConfig{
			NodeID:               hostname,
			PIDFile:              "/run/ironpost/ironpostd.pid",
			LogLevel:             "info",
			LogFormat:            "json",
			OperatorSocketPath:   "/run/ironpost/operator.sock",
			ShutdownGracePeriod:  20 * time.Second,
		},
		EBPF: EBPFConfig{
			Enabled:             true,
			Interface:           "eth0",
			RingBufferSizeBytes: 1 << 20,
		},
		LogPipeline: LogPipelineConfig{
			Enabled:             true,
			RulesDir:            "/etc/ironpost/rules.d",
			SourcePath:          "/run/ironpost/logpipeline.pipe",
			MaxLineBytes:        65536,
			MaxJSONDepth:        32,
			ThresholdCounterCap: 100000,
			Alerts: AlertsConfig{
				DedupWindow:        5 * time.Minute,
				RateLimitPerMinute: 60,
				EvictionInterval:   time.Minute,
			},
			Storage: LogStorageConfig{
				Enabled:       true,
				DBPath:        "/var/lib/ironpost/alert_ledger.db",
				RetentionDays: 30,
			},
		},
		Container: ContainerConfig{
			Enabled:             true,
			PolicyDir:           "/etc/ironpost/policies.d",
			MaxPolicyFileBytes:  10 * 1024 * 1024,
			MaxPolicies:         1000,
			DockerHost:          "unix:///var/run/docker.sock",
			Executor: ExecutorConfig{
				MaxAttempts:    3,
				RetryBackoff:   2 * time.Second,
				AttemptTimeout: 10 * time.Second,
			},
			ContainerCacheTTL:   30 * time.Second,
			MaxCachedContainers: 10000,
		},
		SBOM: SBOMConfig{
			Enabled:            true,
			LockfileGlobs:      []string{"/var/lib/ironpost/targets/**/package-lock.json", "**/go.sum"},
			VulnIndexPath:      "/var/lib/ironpost/vulnindex.db",
			ScanInterval:       time.Hour,
			AlertSeverityFloor: "high",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:9191",
		},
	}
}

// Load reads a TOML config file, applies environment overrides, and
// validates the result. Returns defaults-merged-with-file on success.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: decode %q: %w", path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: env overrides: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides scans IRONPOST_<SECTION>_<FIELD> environment variables
// for the handful of fields operators most commonly override at deploy
// time, without requiring a full reflection-based mapper for every field.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("IRONPOST_GENERAL_LOG_LEVEL"); ok {
		cfg.General.LogLevel = v
	}
	if v, ok := os.LookupEnv("IRONPOST_GENERAL_LOG_FORMAT"); ok {
		cfg.General.LogFormat = v
	}
	if v, ok := os.LookupEnv("IRONPOST_GENERAL_PID_FILE"); ok {
		cfg.General.PIDFile = v
	}
	if v, ok := os.LookupEnv("IRONPOST_EBPF_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IRONPOST_EBPF_ENABLED: %w", err)
		}
		cfg.EBPF.Enabled = b
	}
	if v, ok := os.LookupEnv("IRONPOST_EBPF_INTERFACE"); ok {
		cfg.EBPF.Interface = v
	}
	if v, ok := os.LookupEnv("IRONPOST_CONTAINER_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IRONPOST_CONTAINER_ENABLED: %w", err)
		}
		cfg.Container.Enabled = b
	}
	if v, ok := os.LookupEnv("IRONPOST_CONTAINER_DOCKER_HOST"); ok {
		cfg.Container.DockerHost = v
	}
	if v, ok := os.LookupEnv("IRONPOST_METRICS_LISTEN_ADDR"); ok {
		cfg.Metrics.ListenAddr = v
	}
	return nil
}

// Validate checks all config fields for correctness. Returns a descriptive
// error listing every violation found, not just the first.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.NodeID == "" {
		errs = append(errs, "general.node_id must not be empty")
	}
	if !strings.HasPrefix(cfg.General.PIDFile, "/") {
		errs = append(errs, "general.pid_file must be an absolute path")
	}
	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("general.log_level must be one of debug|info|warn|error, got %q", cfg.General.LogLevel))
	}
	switch cfg.General.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("general.log_format must be json or console, got %q", cfg.General.LogFormat))
	}
	if cfg.General.ShutdownGracePeriod < time.Second {
		errs = append(errs, fmt.Sprintf("general.shutdown_grace_period must be >= 1s, got %s", cfg.General.ShutdownGracePeriod))
	}

	if cfg.EBPF.Enabled {
		if cfg.EBPF.Interface == "" {
			errs = append(errs, "ebpf.interface must not be empty when ebpf.enabled=true")
		}
		if cfg.EBPF.RingBufferSizeBytes <= 0 || cfg.EBPF.RingBufferSizeBytes&(cfg.EBPF.RingBufferSizeBytes-1) != 0 {
			errs = append(errs, fmt.Sprintf("ebpf.ring_buffer_size_bytes must be a positive power of two, got %d", cfg.EBPF.RingBufferSizeBytes))
		}
	}

	if cfg.LogPipeline.Enabled {
		if !strings.HasPrefix(cfg.LogPipeline.RulesDir, "/") {
			errs = append(errs, "log_pipeline.rules_dir must be an absolute path")
		}
		if cfg.LogPipeline.SourcePath != "-" && !strings.HasPrefix(cfg.LogPipeline.SourcePath, "/") {
			errs = append(errs, "log_pipeline.source_path must be \"-\" or an absolute path")
		}
		if cfg.LogPipeline.MaxLineBytes < 1 || cfg.LogPipeline.MaxLineBytes > 1<<20 {
			errs = append(errs, fmt.Sprintf("log_pipeline.max_line_bytes must be in [1, 1048576], got %d", cfg.LogPipeline.MaxLineBytes))
		}
		if cfg.LogPipeline.MaxJSONDepth < 1 || cfg.LogPipeline.MaxJSONDepth > 256 {
			errs = append(errs, fmt.Sprintf("log_pipeline.max_json_depth must be in [1, 256], got %d", cfg.LogPipeline.MaxJSONDepth))
		}
		if cfg.LogPipeline.ThresholdCounterCap < 1 {
			errs = append(errs, "log_pipeline.threshold_counter_cap must be >= 1")
		}
		if cfg.LogPipeline.Alerts.DedupWindow < 0 {
			errs = append(errs, "log_pipeline.alerts.dedup_window must be >= 0")
		}
		if cfg.LogPipeline.Alerts.RateLimitPerMinute < 1 {
			errs = append(errs, "log_pipeline.alerts.rate_limit_per_minute must be >= 1")
		}
		if cfg.LogPipeline.Alerts.EvictionInterval < time.Second {
			errs = append(errs, "log_pipeline.alerts.eviction_interval must be >= 1s")
		}
		if cfg.LogPipeline.Storage.Enabled {
			if !strings.HasPrefix(cfg.LogPipeline.Storage.DBPath, "/") {
				errs = append(errs, "log_pipeline.storage.db_path must be an absolute path")
			}
			if cfg.LogPipeline.Storage.RetentionDays < 1 {
				errs = append(errs, "log_pipeline.storage.retention_days must be >= 1")
			}
		}
	}

	if cfg.Container.Enabled {
		if !strings.HasPrefix(cfg.Container.PolicyDir, "/") {
			errs = append(errs, "container.policy_dir must be an absolute path")
		}
		if cfg.Container.MaxPolicyFileBytes < 1 {
			errs = append(errs, "container.max_policy_file_bytes must be >= 1")
		}
		if cfg.Container.MaxPolicies < 1 {
			errs = append(errs, "container.max_policies must be >= 1")
		}
		if cfg.Container.DockerHost == "" {
			errs = append(errs, "container.docker_host must not be empty")
		}
		if cfg.Container.Executor.MaxAttempts < 1 || cfg.Container.Executor.MaxAttempts > 10 {
			errs = append(errs, fmt.Sprintf("container.executor.max_attempts must be in [1, 10], got %d", cfg.Container.Executor.MaxAttempts))
		}
		if cfg.Container.Executor.AttemptTimeout < time.Second {
			errs = append(errs, "container.executor.attempt_timeout must be >= 1s")
		}
		if cfg.Container.ContainerCacheTTL < time.Second {
			errs = append(errs, "container.container_cache_ttl must be >= 1s")
		}
		if cfg.Container.MaxCachedContainers < 1 {
			errs = append(errs, "container.max_cached_containers must be >= 1")
		}
	}

	if cfg.SBOM.Enabled {
		if len(cfg.SBOM.LockfileGlobs) == 0 {
			errs = append(errs, "sbom.lockfile_globs must not be empty when sbom.enabled=true")
		}
		if !strings.HasPrefix(cfg.SBOM.VulnIndexPath, "/") {
			errs = append(errs, "sbom.vuln_index_path must be an absolute path")
		}
		if cfg.SBOM.ScanInterval < time.Minute {
			errs = append(errs, "sbom.scan_interval must be >= 1m")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		errs = append(errs, "metrics.listen_addr must not be empty when metrics.enabled=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
