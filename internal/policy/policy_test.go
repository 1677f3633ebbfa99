package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftscan/sentinel/internal/domain"
)

func TestIsGlobal(t *testing.T) {
	cases := []struct {
		name string
		d    Descriptor
		want bool
	}{
		{"non-aws provider", Descriptor{Provider: "azure", Resource: "azure.vm"}, true},
		{"comment flag", Descriptor{Resource: "aws.ec2", Comment: "global"}, true},
		{"global resource type", Descriptor{Resource: "aws.iam-user"}, true},
		{"s3 service", Descriptor{Resource: "aws.s3"}, true},
		{"regular regional", Descriptor{Resource: "aws.ec2"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsGlobal(c.d))
		})
	}
}

func TestLoad_GlobalEmittedOnce(t *testing.T) {
	descriptors := []Descriptor{
		{Name: "iam-root-mfa", Resource: "aws.iam-user", Region: "eu-west-1"},
		{Name: "iam-root-mfa", Resource: "aws.iam-user", Region: "eu-central-1"},
		{Name: "ec2-unencrypted", Resource: "aws.ec2", Region: "eu-west-1"},
	}
	out, stats, err := Load(descriptors, []string{"eu-west-1"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Global)
	assert.Equal(t, 1, stats.Regional)
	assert.Len(t, out, 2)

	var globalCount int
	for _, p := range out {
		if p.BoundRegion == domain.GlobalRegion {
			globalCount++
		}
	}
	assert.Equal(t, 1, globalCount)
}

func TestLoad_RegionWhitelistExcludesOtherRegions(t *testing.T) {
	descriptors := []Descriptor{
		{Name: "ec2-a", Resource: "aws.ec2", Region: "eu-west-1"},
		{Name: "ec2-b", Resource: "aws.ec2", Region: "eu-central-1"},
	}
	out, _, err := Load(descriptors, []string{"eu-west-1"}, true)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ec2-a", out[0].Name)
}

func TestLoadFromRegionsToRules(t *testing.T) {
	descriptors := []Descriptor{
		{Name: "rule-1", Resource: "aws.ec2", Region: "eu-central-1"},
		{Name: "rule-2", Resource: "aws.ec2", Region: "eu-west-1"},
		{Name: "rule-3", Resource: "aws.iam-user"},
	}
	mapping := map[string]map[string]struct{}{
		"eu-central-1": {"rule-1": {}},
		"eu-west-1":    {"rule-2": {}, "rule-3": {}},
	}
	out, err := LoadFromRegionsToRules(descriptors, mapping)
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestParseCommentFlags(t *testing.T) {
	f := ParseCommentFlags("global, severity:high, owner:platform-team")
	assert.True(t, f.Global)
	assert.Equal(t, "high", f.Severity)
	assert.Equal(t, "platform-team", f.Extra["owner"])
}

func TestParseBundle(t *testing.T) {
	doc := `
policies:
  - name: s3-public-read-prohibited
    resource: aws.s3
    comment: "severity:critical"
  - name: ec2-unencrypted-volume
    resource: aws.ec2
    region: eu-west-1
`
	descriptors, err := ParseBundle(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, "s3-public-read-prohibited", descriptors[0].Name)
}
