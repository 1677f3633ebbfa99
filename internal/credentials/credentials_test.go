package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/secretstore"
	"github.com/riftscan/sentinel/internal/store"
)

type stubIdentity struct {
	match bool
}

func (s stubIdentity) MatchesTenant(context.Context, domain.Cloud, string) (bool, error) {
	return s.match, nil
}

func TestResolve_CredentialsKeyEnvWins(t *testing.T) {
	t.Setenv(EnvCredentialsKey, "k1")
	secrets := secretstore.NewMemory()
	require.NoError(t, secrets.Put(context.Background(), "k1", `{"AWS_ACCESS_KEY_ID":"AKIA"}`))
	mem := store.NewMemory()
	tenant := domain.NewTenant("t1", "cust", domain.AWS, "111122223333", []string{"eu-west-1"})

	r := &Resolver{Secrets: secrets, Parents: mem.Parents(), Applications: mem.Applications()}
	creds, err := r.Resolve(context.Background(), tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, "AKIA", creds["AWS_ACCESS_KEY_ID"])

	// The secret is consumed: a second resolve must fall through.
	_, err = secrets.GetAndDelete(context.Background(), "k1")
	assert.ErrorIs(t, err, secretstore.ErrNotFound)
}

func TestResolve_CustodianAccessParent(t *testing.T) {
	mem := store.NewMemory()
	tenant := domain.NewTenant("t1", "cust", domain.AWS, "111122223333", []string{"eu-west-1"})
	mem.PutApplication(&domain.Application{ID: "app1", Payload: map[string]string{"AWS_ACCESS_KEY_ID": "FROMPARENT"}})
	mem.PutParent(&domain.Parent{ID: "p1", TenantName: "t1", Type: domain.ParentCustodianAccess, ApplicationID: "app1"})

	r := &Resolver{
		Secrets:      secretstore.NewMemory(),
		Parents:      mem.Parents(),
		Applications: mem.Applications(),
	}
	creds, err := r.Resolve(context.Background(), tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, "FROMPARENT", creds["AWS_ACCESS_KEY_ID"])
}

func TestResolve_InstanceProfileMatch(t *testing.T) {
	mem := store.NewMemory()
	tenant := domain.NewTenant("t1", "cust", domain.AWS, "111122223333", []string{"eu-west-1"})

	r := &Resolver{
		Secrets:      secretstore.NewMemory(),
		Parents:      mem.Parents(),
		Applications: mem.Applications(),
		Identity:     stubIdentity{match: true},
	}
	creds, err := r.Resolve(context.Background(), tenant, nil)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestResolve_NoCredentialsIsTerminal(t *testing.T) {
	mem := store.NewMemory()
	tenant := domain.NewTenant("t1", "cust", domain.AWS, "111122223333", []string{"eu-west-1"})

	r := &Resolver{
		Secrets:      secretstore.NewMemory(),
		Parents:      mem.Parents(),
		Applications: mem.Applications(),
		Identity:     stubIdentity{match: false},
	}
	_, err := r.Resolve(context.Background(), tenant, nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

type stubAssumer struct {
	session map[string]string
	hubSeen map[string]string
}

func (s *stubAssumer) AssumeTenantRole(_ context.Context, hub map[string]string, _ string) (map[string]string, error) {
	s.hubSeen = hub
	return s.session, nil
}

func TestResolve_CustodianAccessRoleIsAssumed(t *testing.T) {
	mem := store.NewMemory()
	tenant := domain.NewTenant("t1", "cust", domain.AWS, "111122223333", []string{"eu-west-1"})
	mem.PutApplication(&domain.Application{ID: "app1", Payload: map[string]string{
		"AWS_ACCESS_KEY_ID":     "HUBKEY",
		"AWS_SECRET_ACCESS_KEY": "HUBSECRET",
		"role_name":             "scan-role",
	}})
	mem.PutParent(&domain.Parent{ID: "p1", TenantName: "t1", Type: domain.ParentCustodianAccess, ApplicationID: "app1"})

	assumer := &stubAssumer{session: map[string]string{"AWS_ACCESS_KEY_ID": "SESSION"}}
	r := &Resolver{
		Secrets:      secretstore.NewMemory(),
		Parents:      mem.Parents(),
		Applications: mem.Applications(),
		Roles:        assumer,
	}
	creds, err := r.Resolve(context.Background(), tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, "SESSION", creds["AWS_ACCESS_KEY_ID"], "hub keys must be exchanged, not handed out")
	assert.Equal(t, "scan-role", assumer.hubSeen["role_name"])
}

func TestResolve_ManagementCredsRequiresOptIn(t *testing.T) {
	mem := store.NewMemory()
	tenant := domain.NewTenant("t1", "cust", domain.AWS, "111122223333", []string{"eu-west-1"})
	mem.PutApplication(&domain.Application{ID: "mgmt-app", Payload: map[string]string{"AWS_ACCESS_KEY_ID": "MGMT"}})
	mem.PutParent(&domain.Parent{ID: "p2", TenantName: "t1", Type: domain.ParentAWSManagement, ApplicationID: "mgmt-app"})

	mgmt := StoreManagementResolver{Parents: mem.Parents(), Applications: mem.Applications()}

	r := &Resolver{
		Secrets:      secretstore.NewMemory(),
		Parents:      mem.Parents(),
		Applications: mem.Applications(),
		Management:   mgmt,
	}
	_, err := r.Resolve(context.Background(), tenant, nil)
	assert.ErrorIs(t, err, ErrNoCredentials, "management creds must not be used unless explicitly allowed")

	r.ManagementPolicy.Allowed = true
	creds, err := r.Resolve(context.Background(), tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, "MGMT", creds["AWS_ACCESS_KEY_ID"])
}
