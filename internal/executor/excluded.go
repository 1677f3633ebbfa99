package executor

import (
	"context"
	"fmt"

	"github.com/riftscan/sentinel/internal/store"
)

// ExcludedRules computes the effective excluded-rule set as the union of
// a customer-level and a tenant-level setting, both independently
// optional.
func ExcludedRules(ctx context.Context, tenantSettings store.TenantSettingsStore, customerSettings store.CustomerSettingsStore, tenantName, customer string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	if tenantSettings != nil {
		rules, err := tenantSettings.ExcludedRules(ctx, tenantName)
		if err != nil {
			return nil, fmt.Errorf("executor: tenant excluded rules: %w", err)
		}
		for _, r := range rules {
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				out = append(out, r)
			}
		}
	}
	if customerSettings != nil {
		rules, err := customerSettings.ExcludedRules(ctx, customer)
		if err != nil {
			return nil, fmt.Errorf("executor: customer excluded rules: %w", err)
		}
		for _, r := range rules {
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				out = append(out, r)
			}
		}
	}
	return out, nil
}
