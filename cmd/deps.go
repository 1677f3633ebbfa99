package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatchsvc "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/batchbackend"
	"github.com/riftscan/sentinel/internal/config"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/license"
	"github.com/riftscan/sentinel/internal/lock"
	"github.com/riftscan/sentinel/internal/objectstore"
	"github.com/riftscan/sentinel/internal/secretstore"
	"github.com/riftscan/sentinel/internal/store"
	"github.com/riftscan/sentinel/internal/submission"
)

// loadConfig reads the fully-resolved config from the process-wide
// viper instance root.go's initConfig populated.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds the daemon logger (serve/worker/run-region);
// interactive subcommands print to the terminal with fmt instead.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// stores bundles every store interface a deployment needs. Only
// JobStore has a SQL-backed implementation; the rest stay in-memory
// even when store.dsn is set (see DESIGN.md).
type stores struct {
	mem  *store.Memory
	jobs store.JobStore
}

func openStores(cfg *config.Config) (*stores, error) {
	mem := store.NewMemory()
	s := &stores{mem: mem, jobs: mem.Jobs()}
	if cfg.StoreDSN == "" {
		return s, nil
	}
	db, dialect, err := store.OpenSQL(cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("cmd: open store: %w", err)
	}
	s.jobs = store.NewSQLJobStore(db, dialect)
	return s, nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.AWSRegion))
}

func openObjectStore(ctx context.Context, backend, bucket string, awsCfg aws.Config) (objectstore.Store, error) {
	switch backend {
	case "memory", "":
		return objectstore.NewMemory(), nil
	case "s3":
		return objectstore.NewS3Store(ctx, bucket, awsCfg.Region)
	case "gcs":
		return objectstore.NewGCSStore(ctx, bucket)
	default:
		return nil, fmt.Errorf("cmd: unknown objectstore backend %q", backend)
	}
}

func newLicenseClient(ctx context.Context, cfg *config.Config) *license.Client {
	if cfg.LicenseManagerBaseURL == "" {
		return nil
	}
	return license.NewClient(ctx, license.Config{
		BaseURL:      cfg.LicenseManagerBaseURL,
		TokenURL:     cfg.LicenseManagerTokenURL,
		ClientID:     cfg.LicenseManagerClientID,
		ClientSecret: cfg.LicenseManagerSecret,
	})
}

// newController assembles the submission controller the serve and
// mcp commands share.
func newController(ctx context.Context, cfg *config.Config, st *stores, batch batchbackend.Backend) *submission.Controller {
	allowedClouds := make(map[domain.Cloud]bool, len(cfg.AllowedClouds))
	for _, c := range cfg.AllowedClouds {
		allowedClouds[domain.Cloud(c)] = true
	}
	return &submission.Controller{
		Tenants:        st.mem.Tenants(),
		Parents:        st.mem.Parents(),
		Applications:   st.mem.Applications(),
		Platforms:      st.mem.Platforms(),
		Licenses:       st.mem.Licenses(),
		RuleSets:       st.mem.RuleSets(),
		TenantSettings: st.mem.TenantSettings(),
		Jobs:           st.jobs,
		Lock:           lock.NewManager(lock.NewMemoryConditionalStore(), true),
		Secrets:        secretstore.NewMemory(),
		Batch:          batch,
		License:        newLicenseClient(ctx, cfg),
		Validator:      &submission.StandardValidator{},
		AllowedClouds:  allowedClouds,
		JobLifetimeMin: cfg.JobLifetimeMin,
		MemoryMiB:      cfg.MemoryMiB,
		VCPUs:          cfg.VCPUs,
		AWSRegion:      cfg.AWSRegion,
	}
}

func openBatchBackend(cfg *config.Config, awsCfg aws.Config) (batchbackend.Backend, error) {
	switch cfg.BatchBackend {
	case "awsbatch", "":
		client := awsbatchsvc.NewFromConfig(awsCfg)
		return batchbackend.NewAWSBatch(client, cfg.JobQueue, cfg.JobDefinition), nil
	case "ecs":
		client := ecs.NewFromConfig(awsCfg)
		return &batchbackend.ECSRunTask{
			Client:         client,
			Cluster:        cfg.ECSCluster,
			TaskDefinition: cfg.ECSTaskDef,
			ContainerName:  "sentinel-worker",
		}, nil
	default:
		return nil, fmt.Errorf("cmd: unknown batch backend %q", cfg.BatchBackend)
	}
}
