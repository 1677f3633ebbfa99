package domain

import "time"

// License is a customer-owned key authorizing use of a set of rule-sets
// for a cloud, with a per-customer tenant-license-key map granting
// individual tenants access.
type License struct {
	Key              string
	Customer         string
	Cloud            Cloud
	Expiration       time.Time
	RuleSetIDs       map[string]struct{} // owned rule-set ids
	TenantLicenseKey map[string]string   // tenant name -> tenant license key (tlk)
}

func (l *License) Expired(now time.Time) bool {
	return !l.Expiration.IsZero() && now.After(l.Expiration)
}

func (l *License) TenantLicenseKeyFor(tenant string) (string, bool) {
	tlk, ok := l.TenantLicenseKey[tenant]
	return tlk, ok
}

// RuleSet is an immutable, versioned bundle of rules for one cloud. The
// triple (Name, Version, Cloud) is unique per customer.
type RuleSet struct {
	ID       string
	Name     string
	Version  string
	Cloud    Cloud
	Customer string
	Licensed bool
	Active   bool
	Source   string // s3/gcs location of the policy bundle
	RuleIDs  []string
}

// WireID renders the rule-set identity as it appears on the wire:
// "<name>", "<name>:<version>", or "<name>:<version>:<license-key>".
func (r *RuleSet) WireID(licenseKey string) string {
	if licenseKey != "" {
		return r.Name + ":" + r.Version + ":" + licenseKey
	}
	if r.Version != "" {
		return r.Name + ":" + r.Version
	}
	return r.Name
}

// Rule is a single policy identity within a rule-set.
type Rule struct {
	ID           string
	Cloud        Cloud
	Comment      string // comment-encoded flags, e.g. "global"
	ResourceType string
}
