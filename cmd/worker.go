package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/config"
	"github.com/riftscan/sentinel/internal/credentials"
	"github.com/riftscan/sentinel/internal/executor"
	"github.com/riftscan/sentinel/internal/secretstore"
	"github.com/riftscan/sentinel/internal/siem"
	"github.com/riftscan/sentinel/internal/submission"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute one queued scan job from the batch envelope in the environment",
	Long: `The batch backend launches "sentinel worker" inside a container whose
environment carries the job envelope built at submission time. The worker
resolves credentials, loads policies, runs each region in an isolated
child process, publishes shards and the diff against the tenant's latest
state, and reports the final status back.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("worker: build logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("worker: load aws config: %w", err)
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	bundles, err := openObjectStore(ctx, cfg.ObjectStoreBackend, cfg.BundlesBucket, awsCfg)
	if err != nil {
		return fmt.Errorf("worker: open bundles store: %w", err)
	}
	reports, err := openObjectStore(ctx, cfg.ObjectStoreBackend, cfg.ReportsBucket, awsCfg)
	if err != nil {
		return fmt.Errorf("worker: open reports store: %w", err)
	}
	statistics, err := openObjectStore(ctx, cfg.ObjectStoreBackend, cfg.StatisticsBucket, awsCfg)
	if err != nil {
		return fmt.Errorf("worker: open statistics store: %w", err)
	}

	secrets := secretstore.NewMemory()
	env := environMap()

	resolver := &credentials.Resolver{
		Secrets:      secrets,
		Parents:      st.mem.Parents(),
		Applications: st.mem.Applications(),
		Management: credentials.StoreManagementResolver{
			Parents:      st.mem.Parents(),
			Applications: st.mem.Applications(),
		},
		ManagementPolicy: credentials.ManagementCredsPolicy{Allowed: cfg.AllowManagementCreds},
		Identity:         credentials.AmbientIdentity{AzureSubscriptionID: cfg.AzureSubscriptionID},
		Roles:            credentials.STSRoleAssumer{Region: cfg.AWSRegion},
		ValidateGCP:      cfg.ValidateGCPCreds,
	}
	platformResolver := &credentials.PlatformResolver{
		Parents:      st.mem.Parents(),
		Applications: st.mem.Applications(),
		Secrets:      secrets,
		Kubeconfig:   credentials.ClientGoKubeconfig{},
		EKS:          credentials.AWSEKSDescriber{},
		Tokens:       credentials.TokenGenerator{},
		Management: credentials.StoreManagementResolver{
			Parents:      st.mem.Parents(),
			Applications: st.mem.Applications(),
		},
		AWSRegion: cfg.AWSRegion,
	}

	driver := &executor.Driver{
		Tenants:          st.mem.Tenants(),
		BatchResults:     st.mem.BatchResultsStore(),
		RuleSets:         st.mem.RuleSets(),
		Licenses:         st.mem.Licenses(),
		TenantSettings:   st.mem.TenantSettings(),
		CustomerSettings: st.mem.CustomerSettings(),
		Jobs:             st.jobs,
		Platforms:        st.mem.Platforms(),
		Credentials:      resolver,
		PlatformCreds:    platformResolver,
		License:          newLicenseClient(ctx, cfg),
		Bundles:          bundles,
		Reports:          reports,
		Statistics:       statistics,
		Spawner:          &executor.ProcessSpawner{},
		SIEM:             newUploader(cfg, env, log, awsCfg),
		SIEMConfig: siem.Config{
			DefectTrackerProduct:    cfg.DefectTrackerProduct,
			DefectTrackerEngagement: cfg.DefectTrackerEngagement,
			DefectTrackerTest:       cfg.DefectTrackerTest,
			DefectTrackerTags:       []string{"sentinel", "job:" + env[submission.KeyJobID]},
			UDMCredentialsKey:       cfg.UDMCredentialsKey,
		},
		Metrics: executor.NewMetrics(awsCfg, "", cfg.MetricsLogGroup),
		Log:     log,
		TempDir: os.TempDir(),
	}

	code := driver.Run(ctx, env)
	log.Info("worker finished", zap.String("job_id", env[submission.KeyJobID]), zap.Int("exit_code", code))
	log.Sync()
	if code != executor.ExitOK {
		os.Exit(code)
	}
	return nil
}

// newUploader wires the SIEM families the deployment has configured;
// either family may come back disabled (nil converter/client).
func newUploader(cfg *config.Config, env map[string]string, log *zap.Logger, awsCfg aws.Config) *siem.Uploader {
	u := &siem.Uploader{Log: log}

	if cfg.DefectTrackerBaseURL != "" {
		u.DefectTracker.Converter = siem.ScanResultsConverter{}
		u.DefectTracker.Client = &siem.DojoClient{BaseURL: cfg.DefectTrackerBaseURL, APIKey: cfg.DefectTrackerAPIKey}
	}

	tenant := env[submission.KeyTenantName]
	switch cfg.UDMSink {
	case "chronicle":
		u.UDM.Sink = &siem.ChronicleClient{Endpoint: cfg.ChronicleEndpoint, CustomerID: cfg.ChronicleCustomerID}
	case "lambda":
		u.UDM.Sink = &siem.LambdaSink{Client: lambda.NewFromConfig(awsCfg), FunctionName: cfg.LambdaIngestFunction}
	default:
		return u
	}
	if strings.EqualFold(cfg.UDMMode, "entities") {
		u.UDM.Converter = siem.UDMEntitiesConverter{Tenant: tenant}
	} else {
		u.UDM.Converter = siem.UDMEventsConverter{Tenant: tenant}
	}
	return u
}

// environMap snapshots the process environment as the flat envelope map
// the executor decodes.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}
