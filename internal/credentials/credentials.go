// Package credentials implements tenant and platform credential
// resolution: an ordered fallback chain that tries a handful of
// sources in turn and stops at the first hit.
package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/secretstore"
	"github.com/riftscan/sentinel/internal/store"
)

// ErrNoCredentials is returned when every step of the chain is
// exhausted; the executor maps it to a terminal job failure (exit 1).
var ErrNoCredentials = fmt.Errorf("credentials: no credentials could be resolved")

// EnvCredentialsKey is the environment variable a standard job's worker
// reads a staged secret-store key from (resolution step 1).
const EnvCredentialsKey = "CREDENTIALS_KEY"

// EnvKubeconfig is the environment variable the worker points at a
// materialized kubeconfig file (platform credential resolution).
const EnvKubeconfig = "KUBE_CONFIG"

// ManagementCredsPolicy gates resolution step 4: management
// credentials must be explicitly opted into, never used by default.
type ManagementCredsPolicy struct {
	Allowed bool
}

// IdentityChecker cross-checks the ambient identity (instance profile,
// workload identity, managed identity) against a tenant's project id for
// resolution step 5. The per-cloud implementation is in identity.go.
type IdentityChecker interface {
	// MatchesTenant reports whether the ambient identity for cloud c
	// equals project. A false, nil error means "checked, did not match"
	// (try the next cloud/step); a non-nil error means "could not check"
	// and is logged, not fatal.
	MatchesTenant(ctx context.Context, c domain.Cloud, project string) (bool, error)
}

// ManagementCredentialsResolver backs resolution step 4: look up the
// tenant's management parent/application and materialize its
// credentials, swappable per deployment.
type ManagementCredentialsResolver interface {
	GetByTenant(ctx context.Context, tenant *domain.Tenant) (map[string]string, error)
}

// Resolver is the tenant credential facade, constructed once per process with
// the stores and clients the deployment has configured, then called once
// per job.
type Resolver struct {
	Secrets       secretstore.Store
	Parents       store.ParentStore
	Applications  store.ApplicationStore
	Management    ManagementCredentialsResolver
	ManagementPolicy ManagementCredsPolicy
	Identity      IdentityChecker

	// Roles, when set, exchanges a CUSTODIAN_ACCESS application that
	// references a role (role_name/role_arn in its payload) for session
	// credentials instead of handing out the hub keys directly.
	Roles RoleAssumer

	// ValidateGCP switches on a service-account existence check for
	// inline GCP credentials before they are materialized to a file.
	ValidateGCP bool
}

// applicationCredentials resolves an Application's stored payload into
// the generic credentials map the rest of the chain passes around.
func applicationCredentials(app *domain.Application) map[string]string {
	if app == nil || len(app.Payload) == 0 {
		return nil
	}
	out := make(map[string]string, len(app.Payload))
	for k, v := range app.Payload {
		out[k] = v
	}
	return out
}

// Resolve runs the tenant credential chain (steps 1-5 below) and returns
// the environment-variable map the worker process should be launched
// with. batchResults is nil for standard/scheduled jobs.
func (r *Resolver) Resolve(ctx context.Context, tenant *domain.Tenant, batchResults *domain.BatchResults) (map[string]string, error) {
	// 1. CREDENTIALS_KEY env -> secret store, consumed once.
	if key := os.Getenv(EnvCredentialsKey); key != "" {
		if raw, err := r.Secrets.GetAndDelete(ctx, key); err == nil {
			creds, decodeErr := secretstore.CredentialsFromJSON(raw)
			if decodeErr == nil && len(creds) > 0 {
				if tenant.Cloud == domain.GCP {
					return r.materializeGoogle(ctx, creds)
				}
				return creds, nil
			}
		}
	}

	// 2. batch_results.credentials_key -> secret store (event-driven only,
	// marked obsolete upstream but preserved for parity).
	if batchResults != nil && batchResults.CredentialsKey != "" {
		if raw, err := r.Secrets.GetAndDelete(ctx, batchResults.CredentialsKey); err == nil {
			creds, decodeErr := secretstore.CredentialsFromJSON(raw)
			if decodeErr == nil && len(creds) > 0 {
				if tenant.Cloud == domain.GCP {
					return r.materializeGoogle(ctx, creds)
				}
				return creds, nil
			}
		}
	}

	// 3. CUSTODIAN_ACCESS parent -> linked application.
	if r.Parents != nil && r.Applications != nil {
		parent, err := r.Parents.GetLinkedParentByTenant(ctx, tenant.Name, domain.ParentCustodianAccess)
		if err == nil && parent != nil {
			app, appErr := r.Applications.Get(ctx, parent.ApplicationID)
			if appErr == nil {
				if creds := applicationCredentials(app); len(creds) > 0 {
					if needsAssume(creds) && r.Roles != nil {
						session, assumeErr := r.Roles.AssumeTenantRole(ctx, creds, "sentinel-scan-"+tenant.Name)
						if assumeErr != nil {
							return nil, fmt.Errorf("credentials: custodian access role: %w", assumeErr)
						}
						return session, nil
					}
					return creds, nil
				}
			}
		}
	}

	// 4. Management creds, opt-in only.
	if r.ManagementPolicy.Allowed && r.Management != nil {
		creds, err := r.Management.GetByTenant(ctx, tenant)
		if err == nil && len(creds) > 0 {
			return creds, nil
		}
	}

	// 5. Ambient identity match -> no explicit credentials needed, the
	// worker inherits its process identity.
	if r.Identity != nil {
		if ok, _ := r.Identity.MatchesTenant(ctx, tenant.Cloud, tenant.Project); ok {
			return map[string]string{}, nil
		}
	}

	return nil, ErrNoCredentials
}

func (r *Resolver) materializeGoogle(ctx context.Context, creds map[string]string) (map[string]string, error) {
	blob, ok := creds["service_account_json"]
	if !ok {
		// Already a file reference or otherwise not an inline blob.
		return creds, nil
	}
	if r.ValidateGCP {
		if err := ValidateGoogleServiceAccount(ctx, blob); err != nil {
			return nil, fmt.Errorf("credentials: validate google service account: %w", err)
		}
	}
	file, err := secretstore.MaterializeGoogleCredentials(blob)
	if err != nil {
		return nil, fmt.Errorf("credentials: materialize google credentials: %w", err)
	}
	return map[string]string{secretstore.EnvGoogleApplicationCredentials: file.Path}, nil
}
