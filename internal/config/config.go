// Package config loads the deployment-wide settings every cmd/*
// subcommand needs, following the cmd/root.go pattern:
// github.com/spf13/viper bound to persistent flags, a config file
// ($HOME/.sentinel.yaml or --config), and environment overrides via
// viper.AutomaticEnv with an SENTINEL_ prefix.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved set of knobs the submission controller,
// executor, scheduler, and HTTP server are built from. Every field has a
// viper key (dotted form in config files, underscored via
// EnvKeyReplacer for env vars, e.g. SENTINEL_STORE_DSN).
type Config struct {
	// Server
	HTTPAddress string
	AuthEnabled bool
	APIKeys     map[string]string // customer -> plaintext key, hashed at startup

	// Store
	StoreDSN string // "" selects the in-memory store

	// Object store
	ObjectStoreBackend string // "s3", "gcs", or "memory"
	ReportsBucket      string
	StatisticsBucket   string
	BundlesBucket      string
	AWSRegion          string

	// Batch backend
	BatchBackend    string // "awsbatch" or "ecs"
	JobQueue        string
	JobDefinition   string
	ECSCluster      string
	ECSTaskDef      string
	MemoryMiB       int32
	VCPUs           float64
	JobLifetimeMin  int

	// Credentials
	AllowManagementCreds bool
	ValidateGCPCreds     bool
	AzureSubscriptionID  string

	// Worker
	EnginePath      string // policy-engine plugin path (run-region)
	MetricsLogGroup string

	// License manager
	LicenseManagerBaseURL  string
	LicenseManagerTokenURL string
	LicenseManagerClientID string
	LicenseManagerSecret   string

	// SIEM
	DefectTrackerBaseURL    string // empty disables the defect-tracker family
	DefectTrackerAPIKey     string
	DefectTrackerProduct    string
	DefectTrackerEngagement string
	DefectTrackerTest       string
	UDMSink                 string // "chronicle", "lambda", or "" to disable
	UDMMode                 string // "events" or "entities"
	UDMCredentialsKey       string
	ChronicleEndpoint       string
	ChronicleCustomerID     string
	LambdaIngestFunction    string

	// Scheduler
	SchedulerReloadPeriod time.Duration

	// Loaded from last_scan_threshold_seconds. The submission cooldown
	// does not read this field; it takes its threshold from the
	// per-customer setting in the tenant-settings store.
	LastScanThresholdSeconds int64

	// Allowed clouds for scanning, empty means "all".
	AllowedClouds []string

	Debug bool
}

// Load reads viper's current state (already populated by cmd/root.go's
// flag bindings and config-file/env resolution) into a typed Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddress:              v.GetString("server.address"),
		AuthEnabled:              v.GetBool("server.auth_enabled"),
		APIKeys:                  stringMap(v.GetStringMapString("server.api_keys")),
		StoreDSN:                 v.GetString("store.dsn"),
		ObjectStoreBackend:       orDefault(v.GetString("objectstore.backend"), "memory"),
		ReportsBucket:            v.GetString("objectstore.reports_bucket"),
		StatisticsBucket:         v.GetString("objectstore.statistics_bucket"),
		BundlesBucket:            v.GetString("objectstore.bundles_bucket"),
		AWSRegion:                orDefault(v.GetString("aws_region"), "us-east-1"),
		BatchBackend:             orDefault(v.GetString("batch.backend"), "awsbatch"),
		JobQueue:                 v.GetString("batch.job_queue"),
		JobDefinition:            v.GetString("batch.job_definition"),
		ECSCluster:               v.GetString("batch.ecs_cluster"),
		ECSTaskDef:               v.GetString("batch.ecs_task_definition"),
		MemoryMiB:                int32(orDefaultInt(v.GetInt("batch.memory_mib"), 2048)),
		VCPUs:                    orDefaultFloat(v.GetFloat64("batch.vcpus"), 1.0),
		JobLifetimeMin:           int(orDefaultInt(v.GetInt("job_lifetime_min"), 180)),
		AllowManagementCreds:     v.GetBool("credentials.allow_management"),
		ValidateGCPCreds:         v.GetBool("credentials.validate_gcp"),
		AzureSubscriptionID:      v.GetString("credentials.azure_subscription_id"),
		EnginePath:               v.GetString("engine.path"),
		MetricsLogGroup:          v.GetString("metrics.log_group"),
		LicenseManagerBaseURL:    v.GetString("license_manager.base_url"),
		LicenseManagerTokenURL:   v.GetString("license_manager.token_url"),
		LicenseManagerClientID:   v.GetString("license_manager.client_id"),
		LicenseManagerSecret:     v.GetString("license_manager.client_secret"),
		DefectTrackerBaseURL:     v.GetString("siem.defect_tracker_base_url"),
		DefectTrackerAPIKey:      v.GetString("siem.defect_tracker_api_key"),
		DefectTrackerProduct:     v.GetString("siem.defect_tracker_product"),
		DefectTrackerEngagement:  v.GetString("siem.defect_tracker_engagement"),
		DefectTrackerTest:        v.GetString("siem.defect_tracker_test"),
		UDMSink:                  v.GetString("siem.udm_sink"),
		UDMMode:                  orDefault(v.GetString("siem.udm_mode"), "events"),
		UDMCredentialsKey:        v.GetString("siem.udm_credentials_key"),
		ChronicleEndpoint:        v.GetString("siem.chronicle_endpoint"),
		ChronicleCustomerID:      v.GetString("siem.chronicle_customer_id"),
		LambdaIngestFunction:     v.GetString("siem.lambda_ingest_function"),
		SchedulerReloadPeriod:    orDefaultDuration(v.GetDuration("scheduler.reload_period"), 5*time.Minute),
		LastScanThresholdSeconds: v.GetInt64("last_scan_threshold_seconds"),
		AllowedClouds:            v.GetStringSlice("allowed_clouds"),
		Debug:                    v.GetBool("debug"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ObjectStoreBackend {
	case "memory", "s3", "gcs":
	default:
		return fmt.Errorf("config: objectstore.backend must be memory, s3, or gcs, got %q", c.ObjectStoreBackend)
	}
	switch c.BatchBackend {
	case "awsbatch", "ecs":
	default:
		return fmt.Errorf("config: batch.backend must be awsbatch or ecs, got %q", c.BatchBackend)
	}
	if c.JobLifetimeMin <= 0 {
		return fmt.Errorf("config: job_lifetime_min must be positive, got %d", c.JobLifetimeMin)
	}
	switch c.UDMSink {
	case "", "chronicle", "lambda":
	default:
		return fmt.Errorf("config: siem.udm_sink must be chronicle or lambda, got %q", c.UDMSink)
	}
	switch c.UDMMode {
	case "events", "entities":
	default:
		return fmt.Errorf("config: siem.udm_mode must be events or entities, got %q", c.UDMMode)
	}
	return nil
}

func stringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
