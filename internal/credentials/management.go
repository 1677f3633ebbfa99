package credentials

import (
	"context"
	"fmt"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/store"
)

// StoreManagementResolver implements ManagementCredentialsResolver by
// walking the tenant -> management parent -> application graph. Gated
// behind ManagementCredsPolicy.Allowed at the call site (step 4 is
// opt-in only).
type StoreManagementResolver struct {
	Parents      store.ParentStore
	Applications store.ApplicationStore
	ParentType   domain.ParentType
}

func (m StoreManagementResolver) GetByTenant(ctx context.Context, tenant *domain.Tenant) (map[string]string, error) {
	typ := m.ParentType
	if typ == "" {
		typ = domain.ParentAWSManagement
	}
	parent, err := m.Parents.GetLinkedParentByTenant(ctx, tenant.Name, typ)
	if err != nil {
		return nil, fmt.Errorf("credentials: management parent lookup: %w", err)
	}
	if parent == nil {
		return nil, nil
	}
	app, err := m.Applications.Get(ctx, parent.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("credentials: management application lookup: %w", err)
	}
	return applicationCredentials(app), nil
}
