package credentials

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"google.golang.org/api/cloudresourcemanager/v1"

	"github.com/riftscan/sentinel/internal/domain"
)

// AmbientIdentity implements IdentityChecker against each cloud's own
// ambient-identity mechanism: AWS STS GetCallerIdentity for an instance
// profile, a comparison against the configured AzureSubscriptionID, and
// a GCP resource-manager project lookup. Azure matches only through
// AzureSubscriptionID; when it is empty the Azure check reports no match.
// A Kubernetes tenant has no ambient identity and always reports no match.
type AmbientIdentity struct {
	// AzureSubscriptionID, when set, is compared directly without a live
	// credential round-trip (most deployments know their own
	// subscription at startup time).
	AzureSubscriptionID string
}

func (a AmbientIdentity) MatchesTenant(ctx context.Context, c domain.Cloud, project string) (bool, error) {
	switch c {
	case domain.AWS:
		return a.matchesAWS(ctx, project)
	case domain.AZURE:
		return a.matchesAzure(ctx, project)
	case domain.GCP:
		return a.matchesGCP(ctx, project)
	default:
		return false, nil
	}
}

func (a AmbientIdentity) matchesAWS(ctx context.Context, project string) (bool, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return false, fmt.Errorf("credentials: load aws config: %w", err)
	}
	client := sts.NewFromConfig(cfg)
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		// STS can be blocked per-region by SCP or VPC endpoint policy
		// where EC2 isn't; the default security group's OwnerId carries
		// the same account id.
		return a.matchesAWSViaEC2(ctx, cfg, project)
	}
	if out.Account == nil {
		return false, nil
	}
	return *out.Account == project, nil
}

func (a AmbientIdentity) matchesAWSViaEC2(ctx context.Context, cfg aws.Config, project string) (bool, error) {
	out, err := ec2.NewFromConfig(cfg).DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupNames: []string{"default"},
	})
	if err != nil {
		return false, fmt.Errorf("credentials: describe default security group: %w", err)
	}
	if len(out.SecurityGroups) == 0 {
		return false, nil
	}
	return aws.ToString(out.SecurityGroups[0].OwnerId) == project, nil
}

func (a AmbientIdentity) matchesAzure(_ context.Context, project string) (bool, error) {
	if a.AzureSubscriptionID == "" {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil || cred == nil {
			return false, fmt.Errorf("credentials: resolve default azure credential: %w", err)
		}
		// DefaultAzureCredential does not expose a subscription id
		// directly; deployments should set AzureSubscriptionID from their
		// ARM_SUBSCRIPTION_ID instead of relying on this branch.
		return false, nil
	}
	return a.AzureSubscriptionID == project, nil
}

func (a AmbientIdentity) matchesGCP(ctx context.Context, project string) (bool, error) {
	svc, err := cloudresourcemanager.NewService(ctx)
	if err != nil {
		return false, fmt.Errorf("credentials: new cloudresourcemanager service: %w", err)
	}
	proj, err := svc.Projects.Get(project).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("credentials: get project %s: %w", project, err)
	}
	return proj.ProjectId == project, nil
}
