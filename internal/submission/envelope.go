// Package submission implements the job submission controller:
// tenant/license/region resolution, per-tenant mutual exclusion, rule-set
// selection, credential staging, and batch-job envelope construction.
// HTTP plumbing itself lives in internal/httpserver.
package submission

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/riftscan/sentinel/internal/domain"
)

// Envelope is the flat key-value bundle handed to the worker through
// the batch backend. It is the sole interface between
// the submission controller and the executor driver.
type Envelope map[string]string

// Envelope environment variable names, the worker-side contract.
const (
	KeyTenantName      = "TENANT_NAME"
	KeyPlatformID      = "PLATFORM_ID"
	KeyJobID           = "JOB_ID"
	KeyJobType         = "JOB_TYPE"
	KeyBatchResultsIDs = "BATCH_RESULTS_IDS"
	KeyTargetRegions   = "TARGET_REGIONS"
	KeyTargetRuleSets  = "TARGET_RULESETS"
	KeyLicensedRuleSets = "LICENSED_RULESETS"
	KeyAffectedLicenses = "AFFECTED_LICENSES"
	KeyCredentialsKey  = "CREDENTIALS_KEY"
	KeySubmittedAt     = "SUBMITTED_AT"
	KeyJobLifetimeMin  = "JOB_LIFETIME_MIN"
	KeyScheduledJobName = "SCHEDULED_JOB_NAME"
	KeyAWSRegion       = "AWS_REGION"
	KeyRulesToScan     = "RULES_TO_SCAN"
)

// LicensedRuleSetTag is the reserved envelope tag prefixing a licensed
// rule-set id in LICENSED_RULESETS.
const LicensedRuleSetTag = "0:"

// EncodeRuleSetRefs serializes a list of (id, name, version) triples as
// "id:name:version" tuples joined by ";", the TARGET_RULESETS wire
// format.
func EncodeRuleSetRefs(refs []domain.RuleSetRef) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, fmt.Sprintf("%s:%s:%s", r.ID, r.Name, r.Version))
	}
	return strings.Join(parts, ";")
}

// DecodeRuleSetRefs is the inverse of EncodeRuleSetRefs, used by the
// executor driver to rebuild the target rule-set list from the
// envelope.
func DecodeRuleSetRefs(s string) []domain.RuleSetRef {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]domain.RuleSetRef, 0, len(parts))
	for _, p := range parts {
		fields := strings.SplitN(p, ":", 3)
		ref := domain.RuleSetRef{ID: fields[0]}
		if len(fields) > 1 {
			ref.Name = fields[1]
		}
		if len(fields) > 2 {
			ref.Version = fields[2]
		}
		out = append(out, ref)
	}
	return out
}

// LicensedRuleSetID renders a license-manager rule-set id in the
// envelope's reserved tag format, "0:<lm-id>".
func LicensedRuleSetID(lmID string) string { return LicensedRuleSetTag + lmID }

// BuildInput carries everything Build needs to assemble an Envelope.
// TENANT_NAME, JOB_ID, JOB_TYPE, TARGET_REGIONS, TARGET_RULESETS,
// SUBMITTED_AT and JOB_LIFETIME_MIN are always set; the other keys are
// omitted when their field is zero-valued.
type BuildInput struct {
	TenantName        string
	PlatformID        string
	JobID             string
	JobType           domain.JobType
	BatchResultsIDs   []string
	TargetRegions     []string
	TargetRuleSets    []domain.RuleSetRef
	RulesToScan       []string
	LicensedRuleSetIDs []string // already "0:<lm-id>"-tagged
	AffectedLicenses  []string
	CredentialsKey    string
	SubmittedAt       time.Time
	JobLifetimeMin    int
	ScheduledJobName  string
	AWSRegion         string
}

// Build assembles the worker envelope for a submitted job.
func Build(in BuildInput) Envelope {
	env := Envelope{
		KeyTenantName:     in.TenantName,
		KeyJobID:          in.JobID,
		KeyJobType:        string(in.JobType),
		KeyTargetRegions:  strings.Join(in.TargetRegions, ","),
		KeyTargetRuleSets: EncodeRuleSetRefs(in.TargetRuleSets),
		KeySubmittedAt:    strconv.FormatInt(in.SubmittedAt.Unix(), 10),
		KeyJobLifetimeMin: strconv.Itoa(in.JobLifetimeMin),
	}
	if in.PlatformID != "" {
		env[KeyPlatformID] = in.PlatformID
	}
	if len(in.BatchResultsIDs) > 0 {
		env[KeyBatchResultsIDs] = strings.Join(in.BatchResultsIDs, ",")
	}
	if len(in.LicensedRuleSetIDs) > 0 {
		sorted := append([]string(nil), in.LicensedRuleSetIDs...)
		sort.Strings(sorted)
		env[KeyLicensedRuleSets] = strings.Join(sorted, ",")
	}
	if len(in.AffectedLicenses) > 0 {
		env[KeyAffectedLicenses] = strings.Join(in.AffectedLicenses, ",")
	}
	if in.CredentialsKey != "" {
		env[KeyCredentialsKey] = in.CredentialsKey
	}
	if in.ScheduledJobName != "" {
		env[KeyScheduledJobName] = in.ScheduledJobName
	}
	if in.AWSRegion != "" {
		env[KeyAWSRegion] = in.AWSRegion
	}
	if len(in.RulesToScan) > 0 {
		env[KeyRulesToScan] = strings.Join(in.RulesToScan, ",")
	}
	return env
}
