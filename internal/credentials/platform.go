package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/secretstore"
	"github.com/riftscan/sentinel/internal/store"
)

// KubeconfigBuilder materializes a k8s.io/client-go clientcmdapi.Config
// to a temp file and returns its path; see kubeconfig.go for the
// client-go-backed implementation.
type KubeconfigBuilder interface {
	// FromRaw wraps an already-serialized kubeconfig (as stored on the
	// application) plus an optional bearer token override.
	FromRaw(raw []byte, bearerToken string) (path string, err error)
	// FromCluster builds a token-based kubeconfig from a described
	// cluster, already carrying a minted bearer token.
	FromCluster(clusterName, endpoint, caData, token string) (path string, err error)
}

// EKSClusterDescriber looks up an EKS cluster's endpoint/CA by name,
// using the resolved management credentials.
type EKSClusterDescriber interface {
	DescribeCluster(ctx context.Context, clusterName, region string, creds map[string]string) (endpoint, caData string, err error)
}

// EKSTokenGenerator mints a bearer token an EKS control plane accepts,
// scoped to a cluster name.
type EKSTokenGenerator interface {
	GetToken(ctx context.Context, clusterName, region string, creds map[string]string) (string, error)
}

// PlatformResolver is the credential facade for Kubernetes platforms:
// native clusters carry their own kubeconfig
// on the linked application, EKS clusters without one fall back to the
// tenant's AWS_MANAGEMENT parent and a freshly minted STS token.
type PlatformResolver struct {
	Parents      store.ParentStore
	Applications store.ApplicationStore
	Secrets      secretstore.Store
	Kubeconfig   KubeconfigBuilder
	EKS          EKSClusterDescriber
	Tokens       EKSTokenGenerator
	Management   ManagementCredentialsResolver
	AWSRegion    string
}

func (r *PlatformResolver) Resolve(ctx context.Context, tenant *domain.Tenant, platform *domain.Platform) (map[string]string, error) {
	app, err := r.Applications.Get(ctx, platform.ParentID)
	if err != nil {
		return nil, fmt.Errorf("credentials: platform application: %w", err)
	}

	var token string
	if key := os.Getenv(EnvCredentialsKey); key != "" {
		if raw, err := r.Secrets.GetAndDelete(ctx, key); err == nil {
			if staged, decodeErr := secretstore.CredentialsFromJSON(raw); decodeErr == nil {
				token = staged["token"]
			}
		}
	}

	if app != nil && app.Secret != "" {
		raw, err := r.Secrets.GetAndDelete(ctx, app.Secret)
		if err == nil && raw != "" {
			path, buildErr := r.Kubeconfig.FromRaw([]byte(raw), token)
			if buildErr == nil {
				return map[string]string{EnvKubeconfig: path}, nil
			}
		}
	}

	if platform.Type != domain.PlatformEKS {
		return nil, fmt.Errorf("credentials: no kubeconfig for native platform %s: %w", platform.ID, ErrNoCredentials)
	}

	// EKS fallback: AWS_MANAGEMENT parent -> application -> management
	// credentials -> describe cluster -> mint a presigned STS token.
	parent, err := r.Parents.GetLinkedParentByTenant(ctx, tenant.Name, domain.ParentAWSManagement)
	if err != nil || parent == nil {
		return nil, fmt.Errorf("credentials: no AWS_MANAGEMENT parent for tenant %s: %w", tenant.Name, ErrNoCredentials)
	}
	mgmtApp, err := r.Applications.Get(ctx, parent.ApplicationID)
	if err != nil || mgmtApp == nil {
		return nil, fmt.Errorf("credentials: management application not found: %w", ErrNoCredentials)
	}
	creds := applicationCredentials(mgmtApp)
	if len(creds) == 0 {
		return nil, fmt.Errorf("credentials: no credentials on management application %s: %w", mgmtApp.ID, ErrNoCredentials)
	}

	endpoint, caData, err := r.EKS.DescribeCluster(ctx, platform.ClusterName, platform.Region, creds)
	if err != nil {
		return nil, fmt.Errorf("credentials: describe eks cluster %s: %w", platform.ClusterName, err)
	}
	eksToken, err := r.Tokens.GetToken(ctx, platform.ClusterName, r.AWSRegion, creds)
	if err != nil {
		return nil, fmt.Errorf("credentials: mint eks token: %w", err)
	}
	path, err := r.Kubeconfig.FromCluster(platform.ClusterName, endpoint, caData, eksToken)
	if err != nil {
		return nil, fmt.Errorf("credentials: build eks kubeconfig: %w", err)
	}
	return map[string]string{EnvKubeconfig: path}, nil
}
