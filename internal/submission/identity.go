package submission

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/riftscan/sentinel/internal/domain"
)

// CredentialsValidator cross-checks inline credentials supplied on a
// submit request against the tenant's own cloud identifier: STS
// GetCallerIdentity.Account for AWS, the project_id field for GCP,
// nothing for Azure.
type CredentialsValidator interface {
	Validate(ctx context.Context, cloud domain.Cloud, project string, creds map[string]string) (bool, error)
}

// StandardValidator implements CredentialsValidator: a live STS call
// for AWS, a field comparison for GCP, and a deliberate no-op for Azure
// (see DESIGN.md on the Azure branch).
type StandardValidator struct{}

func (StandardValidator) Validate(ctx context.Context, cloud domain.Cloud, project string, creds map[string]string) (bool, error) {
	switch cloud {
	case domain.AWS:
		return validateAWS(ctx, project, creds)
	case domain.GCP:
		return creds["project_id"] == project, nil
	case domain.AZURE:
		// No reliable identity check exists for inline Azure
		// credentials; a no-op that always reports a match beats
		// guessing at a validator. Flagged in DESIGN.md.
		return true, nil
	default:
		return true, nil
	}
}

func validateAWS(ctx context.Context, project string, creds map[string]string) (bool, error) {
	accessKey, secretKey, sessionToken := creds["AWS_ACCESS_KEY_ID"], creds["AWS_SECRET_ACCESS_KEY"], creds["AWS_SESSION_TOKEN"]
	if accessKey == "" || secretKey == "" {
		return false, fmt.Errorf("submission: inline aws credentials missing access key/secret")
	}
	cfg := aws.Config{
		Credentials: awscreds.NewStaticCredentialsProvider(accessKey, secretKey, sessionToken),
		Region:      "us-east-1",
	}
	client := sts.NewFromConfig(cfg)
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return false, fmt.Errorf("submission: sts get_caller_identity: %w", err)
	}
	if out.Account == nil {
		return false, nil
	}
	return *out.Account == project, nil
}
