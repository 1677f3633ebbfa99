package credentials

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/eks"
)

// AWSEKSDescriber backs EKSClusterDescriber against the real EKS API,
// building a fresh per-call client from explicit static credentials
// rather than the shared ambient config: the management credentials are
// scoped to this one call, not the process.
type AWSEKSDescriber struct{}

func (AWSEKSDescriber) DescribeCluster(ctx context.Context, clusterName, region string, creds map[string]string) (endpoint, caData string, err error) {
	cfg := aws.Config{
		Region: region,
		Credentials: awscreds.NewStaticCredentialsProvider(
			creds["AWS_ACCESS_KEY_ID"], creds["AWS_SECRET_ACCESS_KEY"], creds["AWS_SESSION_TOKEN"],
		),
	}
	client := eks.NewFromConfig(cfg)
	out, err := client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(clusterName)})
	if err != nil {
		return "", "", fmt.Errorf("credentials: eks describe_cluster: %w", err)
	}
	if out.Cluster == nil || out.Cluster.Endpoint == nil || out.Cluster.CertificateAuthority == nil {
		return "", "", fmt.Errorf("credentials: eks cluster %s missing endpoint/ca", clusterName)
	}
	return aws.ToString(out.Cluster.Endpoint), aws.ToString(out.Cluster.CertificateAuthority.Data), nil
}
