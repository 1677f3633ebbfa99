package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Payload keys a CUSTODIAN_ACCESS application may carry. An application
// holding hub-account keys plus a role name means "assume this role in
// the tenant account" rather than "use these keys directly".
const (
	payloadRoleName  = "role_name"
	payloadRoleARN   = "role_arn"
	payloadAccessKey = "AWS_ACCESS_KEY_ID"
	payloadSecretKey = "AWS_SECRET_ACCESS_KEY"
	payloadSession   = "AWS_SESSION_TOKEN"
)

// RoleAssumer exchanges hub credentials plus a role reference for
// short-lived session credentials in the tenant account.
type RoleAssumer interface {
	AssumeTenantRole(ctx context.Context, hub map[string]string, sessionName string) (map[string]string, error)
}

// STSRoleAssumer is the production RoleAssumer: it resolves a bare
// role_name to its full ARN through IAM (the stored application often
// predates the account's path/ARN layout), then mints session
// credentials with STS AssumeRole.
type STSRoleAssumer struct {
	Region   string
	Duration time.Duration
}

func (a STSRoleAssumer) config(ctx context.Context, hub map[string]string) (aws.Config, error) {
	provider := awscreds.NewStaticCredentialsProvider(hub[payloadAccessKey], hub[payloadSecretKey], hub[payloadSession])
	return awscfg.LoadDefaultConfig(ctx,
		awscfg.WithRegion(a.Region),
		awscfg.WithCredentialsProvider(provider),
	)
}

func (a STSRoleAssumer) AssumeTenantRole(ctx context.Context, hub map[string]string, sessionName string) (map[string]string, error) {
	cfg, err := a.config(ctx, hub)
	if err != nil {
		return nil, fmt.Errorf("credentials: load hub config: %w", err)
	}

	roleARN := hub[payloadRoleARN]
	if roleARN == "" {
		out, err := iam.NewFromConfig(cfg).GetRole(ctx, &iam.GetRoleInput{
			RoleName: aws.String(hub[payloadRoleName]),
		})
		if err != nil {
			return nil, fmt.Errorf("credentials: resolve role %s: %w", hub[payloadRoleName], err)
		}
		roleARN = aws.ToString(out.Role.Arn)
	}

	duration := a.Duration
	if duration == 0 {
		duration = time.Hour
	}
	assumed, err := sts.NewFromConfig(cfg).AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(int32(duration.Seconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("credentials: assume role %s: %w", roleARN, err)
	}

	return map[string]string{
		payloadAccessKey: aws.ToString(assumed.Credentials.AccessKeyId),
		payloadSecretKey: aws.ToString(assumed.Credentials.SecretAccessKey),
		payloadSession:   aws.ToString(assumed.Credentials.SessionToken),
	}, nil
}

// needsAssume reports whether an application payload references a role
// instead of (or on top of) direct keys.
func needsAssume(creds map[string]string) bool {
	return creds[payloadRoleName] != "" || creds[payloadRoleARN] != ""
}
