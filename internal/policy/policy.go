// Package policy implements the rule-set & policy loader: turning
// policy descriptors (as parsed from a rule-set YAML bundle) into
// executable Policy values bound to a region or to the synthetic
// "global" bucket.
package policy

import (
	"context"
	"fmt"

	"github.com/riftscan/sentinel/internal/domain"
)

// Descriptor is a single rule's raw definition as read from a rule-set
// bundle: at minimum a name, a resource type, and an optional comment
// carrying flags (see ParseCommentFlags).
type Descriptor struct {
	Name     string
	Resource string
	Provider string // "aws", "azure", "gcp", "k8s"; defaults to "aws"
	Comment  string
	Region   string // only meaningful for AWS; ignored otherwise
}

func (d Descriptor) providerName() string {
	if d.Provider == "" {
		return "aws"
	}
	return d.Provider
}

// globalResourceTypes mirrors Cloud Custodian's resource_type.
// global_resource flag for the handful of AWS resource types the loader
// needs to recognize as inherently global (IAM, Route53, CloudFront,
// WAF-classic all have no regional API).
var globalResourceTypes = map[string]bool{
	"aws.iam-user":        true,
	"aws.iam-role":        true,
	"aws.iam-policy":      true,
	"aws.iam-group":       true,
	"aws.route53-zone":    true,
	"aws.cloudfront":      true,
	"aws.waf":             true,
	"aws.s3":              true,
}

func resourceService(resource string) string {
	// "aws.s3" -> "s3"; bare "s3" -> "s3".
	for i := len(resource) - 1; i >= 0; i-- {
		if resource[i] == '.' {
			return resource[i+1:]
		}
	}
	return resource
}

// IsGlobal reports whether d must execute only once, ignoring region,
// one of four conditions: non-AWS provider, a global comment flag, a
// global resource type, or the s3 service.
func IsGlobal(d Descriptor) bool {
	if d.providerName() != "aws" {
		return true
	}
	if flags := ParseCommentFlags(d.Comment); flags.Global {
		return true
	}
	if globalResourceTypes[d.Resource] {
		return true
	}
	return resourceService(d.Resource) == "s3"
}

// Policy is an executable unit bound to a concrete region (or the
// synthetic GlobalRegion). Execute is supplied by the caller: this
// package's job is selection and binding, not the scan engine itself.
type Policy struct {
	Descriptor
	BoundRegion string
}

// Executor runs a single bound policy and reports resources it matched.
// The regional runner is the caller; concrete implementations live
// outside this package (e.g. wrapping a scanning engine per provider).
type Executor interface {
	Execute(ctx context.Context, p Policy) (resourceCount int, err error)
}

// LoadStats counts how many descriptors ended up bound globally vs
// regionally, reported in the job statistics.
type LoadStats struct {
	Global   int
	Regional int
}

// Load runs the full selection pipeline: resource-type discovery (left
// implicit here, Go has no schema pre-registration step), provider
// grouping (trivial since Policy carries no provider-specific runtime
// object), global detection, and region filtering. regionWhitelist may
// be empty to mean "no restriction". loadGlobal=false suppresses global
// policies entirely (used by run-region's per-region pass).
func Load(descriptors []Descriptor, regionWhitelist []string, loadGlobal bool) ([]Policy, LoadStats, error) {
	whitelist := toSet(regionWhitelist)
	emittedGlobal := make(map[string]struct{})
	var out []Policy
	var stats LoadStats

	for _, d := range descriptors {
		if d.Name == "" || d.Resource == "" {
			continue // invalid descriptor: skipped silently
		}
		if loadGlobal && IsGlobal(d) {
			if _, seen := emittedGlobal[d.Name]; seen {
				continue
			}
			emittedGlobal[d.Name] = struct{}{}
			out = append(out, Policy{Descriptor: d, BoundRegion: domain.GlobalRegion})
			stats.Global++
			continue
		}
		if IsGlobal(d) && !loadGlobal {
			continue
		}
		if len(whitelist) > 0 {
			if _, ok := whitelist[d.Region]; !ok {
				continue
			}
		}
		out = append(out, Policy{Descriptor: d, BoundRegion: d.Region})
		stats.Regional++
	}
	return out, stats, nil
}

// LoadFromRegionsToRules is the mapping-driven load mode used by
// event-driven jobs: given a region -> rule-id set mapping,
// keep a global policy iff its name is in the union of all rule ids, and
// keep a regional policy iff its name is in mapping[policy.region].
func LoadFromRegionsToRules(descriptors []Descriptor, mapping map[string]map[string]struct{}) ([]Policy, error) {
	wanted := make(map[string]struct{})
	for _, names := range mapping {
		for n := range names {
			wanted[n] = struct{}{}
		}
	}

	byName := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}

	var out []Policy
	for _, d := range descriptors {
		if _, want := wanted[d.Name]; !want {
			continue
		}
		if IsGlobal(d) {
			out = append(out, Policy{Descriptor: d, BoundRegion: domain.GlobalRegion})
			continue
		}
		if names, ok := mapping[d.Region]; ok {
			if _, want := names[d.Name]; want {
				out = append(out, Policy{Descriptor: d, BoundRegion: d.Region})
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("policy: regions-to-rules mapping matched no descriptors")
	}
	return out, nil
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
