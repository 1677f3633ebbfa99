// Package executor implements the worker-side driver: the entry point
// that reads a single environment envelope built by the submission
// controller and runs a job to completion, one isolated child process
// per region.
package executor

import (
	"strconv"
	"strings"
	"time"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/submission"
)

// Input is the envelope decoded into typed fields, the worker-side
// counterpart of submission.BuildInput.
type Input struct {
	TenantName         string
	PlatformID         string
	JobID              string
	JobType            domain.JobType
	BatchResultsIDs    []string
	TargetRegions      []string
	TargetRuleSets     []domain.RuleSetRef
	RulesToScan        []string
	LicensedRuleSetIDs []string
	AffectedLicenses   []string
	CredentialsKey     string
	SubmittedAt        time.Time
	JobLifetimeMin     int
	ScheduledJobName   string
	AWSRegion          string
}

// DecodeEnvelope is the executor-side inverse of submission.Build.
func DecodeEnvelope(env map[string]string) Input {
	lifetime, _ := strconv.Atoi(env[submission.KeyJobLifetimeMin])
	submittedUnix, _ := strconv.ParseInt(env[submission.KeySubmittedAt], 10, 64)

	in := Input{
		TenantName:       env[submission.KeyTenantName],
		PlatformID:       env[submission.KeyPlatformID],
		JobID:            env[submission.KeyJobID],
		JobType:          domain.JobType(env[submission.KeyJobType]),
		TargetRuleSets:   submission.DecodeRuleSetRefs(env[submission.KeyTargetRuleSets]),
		CredentialsKey:   env[submission.KeyCredentialsKey],
		JobLifetimeMin:   lifetime,
		ScheduledJobName: env[submission.KeyScheduledJobName],
		AWSRegion:        env[submission.KeyAWSRegion],
	}
	if submittedUnix > 0 {
		in.SubmittedAt = time.Unix(submittedUnix, 0).UTC()
	}
	in.TargetRegions = splitCSV(env[submission.KeyTargetRegions])
	in.RulesToScan = splitCSV(env[submission.KeyRulesToScan])
	in.BatchResultsIDs = splitCSV(env[submission.KeyBatchResultsIDs])
	in.AffectedLicenses = splitCSV(env[submission.KeyAffectedLicenses])
	in.LicensedRuleSetIDs = splitCSV(env[submission.KeyLicensedRuleSets])
	return in
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
