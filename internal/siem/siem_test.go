package siem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftscan/sentinel/internal/shards"
)

type fakeDojoClient struct {
	called bool
	err    error
}

func (f *fakeDojoClient) ImportScan(context.Context, string, string, string, []string, any) error {
	f.called = true
	return f.err
}

type fakeUDMSink struct {
	called bool
	err    error
}

func (f *fakeUDMSink) Submit(context.Context, string, any) error {
	f.called = true
	return f.err
}

func TestUpload_FailureInOneFamilyDoesNotBlockTheOther(t *testing.T) {
	col := shards.NewCollection("t1", "job1", []string{"eu-west-1"})
	require.NoError(t, col.PutParts([]shards.Finding{{ResourceID: "i-1", Rule: "r1", Region: "eu-west-1"}}))

	dojo := &fakeDojoClient{err: assertErr}
	udm := &fakeUDMSink{}

	u := &Uploader{}
	u.DefectTracker.Converter = ScanResultsConverter{}
	u.DefectTracker.Client = dojo
	u.UDM.Converter = UDMEventsConverter{Tenant: "t1"}
	u.UDM.Sink = udm

	u.Upload(context.Background(), "job1", Config{}, col)

	assert.True(t, dojo.called)
	assert.True(t, udm.called)
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }
