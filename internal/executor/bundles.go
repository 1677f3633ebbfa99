package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/license"
	"github.com/riftscan/sentinel/internal/policy"
)

// errLMDenied wraps a license.ErrDenied so Run can recognize it without
// reaching back into the license package's error type at the call site.
type errLMDenied struct{ cause error }

func (e errLMDenied) Error() string { return "executor: license manager denied: " + e.cause.Error() }
func (e errLMDenied) Unwrap() error { return e.cause }

// loadDescriptors assembles the union of the
// standard rule-set bundles named in TargetRuleSets and the licensed
// bundles pre-authorized through the license manager, filtered by rulesToScan and
// excludedRules.
func (d *Driver) loadDescriptors(ctx context.Context, in Input, tenant *domain.Tenant, excludedRules []string) ([]policy.Descriptor, error) {
	var all []policy.Descriptor

	standard, err := d.standardDescriptors(ctx, in.TargetRuleSets)
	if err != nil {
		return nil, err
	}
	all = append(all, standard...)

	if len(in.LicensedRuleSetIDs) > 0 {
		licensed, err := d.licensedDescriptors(ctx, in, tenant)
		if err != nil {
			return nil, err
		}
		all = append(all, licensed...)
	}

	return filterDescriptors(all, in.RulesToScan, excludedRules), nil
}

func (d *Driver) standardDescriptors(ctx context.Context, refs []domain.RuleSetRef) ([]policy.Descriptor, error) {
	var out []policy.Descriptor
	for _, ref := range refs {
		rs, err := d.RuleSets.GetByID(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("executor: rule-set %s: %w", ref.ID, err)
		}
		descriptors, err := d.fetchBundle(ctx, rs.Source)
		if err != nil {
			return nil, err
		}
		out = append(out, descriptors...)
	}
	return out, nil
}

// licensedDescriptors re-authorizes the licensed rule-set ids named in
// the envelope against the license manager (the submission controller's own pre-auth
// call does not carry the resulting bundle URLs across the batch
// boundary) and fetches the bundles it returns.
func (d *Driver) licensedDescriptors(ctx context.Context, in Input, tenant *domain.Tenant) ([]policy.Descriptor, error) {
	if len(in.AffectedLicenses) == 0 {
		return nil, fmt.Errorf("executor: licensed rule-sets requested without an affected license")
	}
	lic, err := d.Licenses.GetByCustomerAndCloud(ctx, tenant.Customer, tenant.Cloud)
	if err != nil {
		return nil, fmt.Errorf("executor: license lookup: %w", err)
	}
	tlk, ok := lic.TenantLicenseKeyFor(tenant.Name)
	if !ok {
		return nil, fmt.Errorf("executor: tenant %s has no tenant-license-key", tenant.Name)
	}

	rulesetMap := make(map[string]string, len(in.LicensedRuleSetIDs))
	for _, tagged := range in.LicensedRuleSetIDs {
		rulesetMap[strings.TrimPrefix(tagged, submissionLicensedTag)] = tlk
	}

	content, err := d.License.IsAllowedToLicenseAJob(ctx, in.JobID, tenant.Customer, tenant.Name, rulesetMap)
	if err != nil {
		var denied *license.ErrDenied
		if errors.As(err, &denied) {
			return nil, errLMDenied{cause: err}
		}
		return nil, fmt.Errorf("executor: license manager unavailable: %w", err)
	}

	var out []policy.Descriptor
	for _, url := range content {
		descriptors, err := d.fetchBundle(ctx, url)
		if err != nil {
			return nil, err
		}
		out = append(out, descriptors...)
	}
	return out, nil
}

func (d *Driver) fetchBundle(ctx context.Context, location string) ([]policy.Descriptor, error) {
	rc, err := d.Bundles.Get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("executor: fetch bundle %s: %w", location, err)
	}
	defer rc.Close()
	descriptors, err := policy.ParseBundle(rc)
	if err != nil {
		return nil, fmt.Errorf("executor: parse bundle %s: %w", location, err)
	}
	return descriptors, nil
}

// filterDescriptors applies rulesToScan (an inclusion filter; empty
// means "all") and excludedRules (always subtracted) by descriptor name.
func filterDescriptors(descriptors []policy.Descriptor, rulesToScan, excludedRules []string) []policy.Descriptor {
	var include map[string]struct{}
	if len(rulesToScan) > 0 {
		include = make(map[string]struct{}, len(rulesToScan))
		for _, n := range rulesToScan {
			include[n] = struct{}{}
		}
	}
	exclude := make(map[string]struct{}, len(excludedRules))
	for _, n := range excludedRules {
		exclude[n] = struct{}{}
	}

	out := make([]policy.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if _, excluded := exclude[d.Name]; excluded {
			continue
		}
		if include != nil {
			if _, ok := include[d.Name]; !ok {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

const submissionLicensedTag = "0:"
