package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/riftscan/sentinel/internal/credentials"
	"github.com/riftscan/sentinel/internal/secretstore"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Prepare and test credentials for scan submissions",
	Long: `Helpers around the credential shapes the submission API accepts.

"stage" reads local provider credentials and prints the JSON payload to
pass as the "credentials" field of a submit request. "test" runs the
worker's credential-resolution chain for a tenant and reports which
source would win.

Examples:
  sentinel credentials stage aws --profile dev
  sentinel credentials stage gcp --file sa.json
  sentinel credentials test my-tenant`,
}

var credentialsStageCmd = &cobra.Command{
	Use:   "stage <provider>",
	Short: "Print the submit-request credentials payload for a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsStage,
}

var credentialsTestCmd = &cobra.Command{
	Use:   "test <tenant>",
	Short: "Run the credential-resolution chain for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsTest,
}

func init() {
	credentialsStageCmd.Flags().String("profile", "", "AWS CLI profile to export")
	credentialsStageCmd.Flags().String("file", "", "GCP service account JSON file")
	credentialsCmd.AddCommand(credentialsStageCmd)
	credentialsCmd.AddCommand(credentialsTestCmd)
}

func runCredentialsStage(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(args[0])

	var payload map[string]string
	var err error
	switch provider {
	case "aws":
		profile, _ := cmd.Flags().GetString("profile")
		payload, err = exportAWSCredentials(profile)
	case "gcp":
		file, _ := cmd.Flags().GetString("file")
		payload, err = exportGCPCredentials(file)
	case "azure":
		payload = map[string]string{
			"AZURE_TENANT_ID":     os.Getenv("AZURE_TENANT_ID"),
			"AZURE_CLIENT_ID":     os.Getenv("AZURE_CLIENT_ID"),
			"AZURE_CLIENT_SECRET": os.Getenv("AZURE_CLIENT_SECRET"),
		}
	default:
		return fmt.Errorf("credentials: unsupported provider %q (aws, gcp, azure)", provider)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// exportAWSCredentials shells out to the AWS CLI the same way a human
// would, so SSO/role profiles resolve through the CLI's own machinery.
func exportAWSCredentials(profile string) (map[string]string, error) {
	cliArgs := []string{"configure", "export-credentials", "--format", "env-no-export"}
	if profile != "" {
		cliArgs = append(cliArgs, "--profile", profile)
	}
	out, err := exec.Command("aws", cliArgs...).Output()
	if err != nil {
		return nil, fmt.Errorf("credentials: aws configure export-credentials: %w", err)
	}

	payload := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			payload[k] = v
		}
	}
	if payload["AWS_ACCESS_KEY_ID"] == "" {
		return nil, fmt.Errorf("credentials: profile exported no access key")
	}
	return payload, nil
}

func exportGCPCredentials(file string) (map[string]string, error) {
	if file == "" {
		file = os.Getenv(secretstore.EnvGoogleApplicationCredentials)
	}
	if file == "" {
		return nil, fmt.Errorf("credentials: no service account file (use --file or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	blob, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", file, err)
	}
	if !json.Valid(blob) {
		return nil, fmt.Errorf("credentials: %s is not valid JSON", file)
	}
	return map[string]string{"service_account_json": string(blob)}, nil
}

func runCredentialsTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	tenant, err := st.mem.Tenants().Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("credentials: tenant %s: %w", args[0], err)
	}

	resolver := &credentials.Resolver{
		Secrets:      secretstore.NewMemory(),
		Parents:      st.mem.Parents(),
		Applications: st.mem.Applications(),
		Management: credentials.StoreManagementResolver{
			Parents:      st.mem.Parents(),
			Applications: st.mem.Applications(),
		},
		ManagementPolicy: credentials.ManagementCredsPolicy{Allowed: cfg.AllowManagementCreds},
		Identity:         credentials.AmbientIdentity{AzureSubscriptionID: cfg.AzureSubscriptionID},
		Roles:            credentials.STSRoleAssumer{Region: cfg.AWSRegion},
	}
	creds, err := resolver.Resolve(ctx, tenant, nil)
	if err != nil {
		return fmt.Errorf("credentials: resolution failed for %s: %w", tenant.Name, err)
	}

	if len(creds) == 0 {
		fmt.Printf("tenant %s: ambient process identity matches, no explicit credentials needed\n", tenant.Name)
		return nil
	}
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("tenant %s: resolved credentials carrying %s\n", tenant.Name, strings.Join(keys, ", "))
	return nil
}
