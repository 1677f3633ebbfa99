package submission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/riftscan/sentinel/internal/domain"
)

func TestBuild_RoundTripsThroughWireFormats(t *testing.T) {
	submitted := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	refs := []domain.RuleSetRef{
		{ID: "rs-1", Name: "base", Version: "1"},
		{ID: "rs-2", Name: "premium", Version: "3"},
	}

	env := Build(BuildInput{
		TenantName:         "t1",
		PlatformID:         "plat-1",
		JobID:              "job-1",
		JobType:            domain.JobTypeScheduled,
		BatchResultsIDs:    []string{"br-1", "br-2"},
		TargetRegions:      []string{"eu-west-1", "us-east-1"},
		TargetRuleSets:     refs,
		RulesToScan:        []string{"r1", "r2"},
		LicensedRuleSetIDs: []string{"0:lm-2", "0:lm-1"},
		AffectedLicenses:   []string{"lic-1"},
		CredentialsKey:     "job-creds-job-1",
		SubmittedAt:        submitted,
		JobLifetimeMin:     90,
		ScheduledJobName:   "nightly",
		AWSRegion:          "us-east-1",
	})

	assert.Equal(t, "eu-west-1,us-east-1", env[KeyTargetRegions])
	assert.Equal(t, "rs-1:base:1;rs-2:premium:3", env[KeyTargetRuleSets])
	assert.Equal(t, "0:lm-1,0:lm-2", env[KeyLicensedRuleSets])

	decoded := DecodeRuleSetRefs(env[KeyTargetRuleSets])
	assert.Equal(t, refs, decoded)
}

func TestBuild_OmitsEmptyOptionalKeys(t *testing.T) {
	env := Build(BuildInput{
		TenantName:     "t1",
		JobID:          "job-1",
		JobType:        domain.JobTypeStandard,
		SubmittedAt:    time.Unix(1748779200, 0),
		JobLifetimeMin: 60,
	})

	for _, key := range []string{KeyPlatformID, KeyBatchResultsIDs, KeyLicensedRuleSets, KeyAffectedLicenses, KeyCredentialsKey, KeyScheduledJobName, KeyRulesToScan} {
		_, present := env[key]
		assert.False(t, present, "key %s should be omitted", key)
	}
}

func TestDecodeRuleSetRefs_PartialTuples(t *testing.T) {
	refs := DecodeRuleSetRefs("rs-1;rs-2:base;rs-3:base:2")
	assert.Equal(t, []domain.RuleSetRef{
		{ID: "rs-1"},
		{ID: "rs-2", Name: "base"},
		{ID: "rs-3", Name: "base", Version: "2"},
	}, refs)
}

func TestLicensedRuleSetID(t *testing.T) {
	assert.Equal(t, "0:lm-42", LicensedRuleSetID("lm-42"))
}
