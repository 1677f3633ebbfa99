// Package siem implements the executor's SIEM upload stage: two
// independent, failure-tolerant integration families — a defect-tracker
// (import_scan-style) and a UDM events/entities sink.
package siem

import (
	"context"

	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/shards"
)

// DefectTrackerConverter turns a shard collection into the scan-type
// specific payload a defect tracker's import_scan endpoint expects.
type DefectTrackerConverter interface {
	Convert(c *shards.Collection) (any, error)
}

// DefectTrackerClient submits a converted scan to the tracker.
type DefectTrackerClient interface {
	ImportScan(ctx context.Context, product, engagement, test string, tags []string, payload any) error
}

// UDMConverter selects between the "events" and "entities" conversion
// modes for a UDM sink, per deployment configuration.
type UDMConverter interface {
	Convert(c *shards.Collection) (any, error)
}

// UDMSink submits converted UDM records.
type UDMSink interface {
	Submit(ctx context.Context, credentialsKey string, payload any) error
}

// Config names the integration-specific identifiers the converters/
// clients need. Absent fields are passed through as empty values; whether
// a family runs depends only on the Uploader's converter and client/sink.
type Config struct {
	DefectTrackerProduct     string
	DefectTrackerEngagement  string
	DefectTrackerTest        string
	DefectTrackerTags        []string
	UDMCredentialsKey        string
}

// Uploader runs both integration families. Either may be nil, in which
// case that family is skipped entirely.
type Uploader struct {
	DefectTracker struct {
		Converter DefectTrackerConverter
		Client    DefectTrackerClient
	}
	UDM struct {
		Converter UDMConverter
		Sink      UDMSink
	}
	Log *zap.Logger
}

// Upload runs both families in parallel; a failure in one never affects
// the other, and neither failure fails the job: upload errors are
// logged and swallowed.
func (u *Uploader) Upload(ctx context.Context, jobID string, cfg Config, c *shards.Collection) {
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		u.uploadDefectTracker(ctx, jobID, cfg, c)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		u.uploadUDM(ctx, jobID, cfg, c)
	}()

	<-done
	<-done
}

func (u *Uploader) uploadDefectTracker(ctx context.Context, jobID string, cfg Config, c *shards.Collection) {
	if u.DefectTracker.Converter == nil || u.DefectTracker.Client == nil {
		return
	}
	defer u.recover("defect-tracker", jobID)

	payload, err := u.DefectTracker.Converter.Convert(c)
	if err != nil {
		u.logf("defect-tracker convert failed", jobID, err)
		return
	}
	if err := u.DefectTracker.Client.ImportScan(ctx, cfg.DefectTrackerProduct, cfg.DefectTrackerEngagement, cfg.DefectTrackerTest, cfg.DefectTrackerTags, payload); err != nil {
		u.logf("defect-tracker import_scan failed", jobID, err)
	}
}

func (u *Uploader) uploadUDM(ctx context.Context, jobID string, cfg Config, c *shards.Collection) {
	if u.UDM.Converter == nil || u.UDM.Sink == nil {
		return
	}
	defer u.recover("udm", jobID)

	payload, err := u.UDM.Converter.Convert(c)
	if err != nil {
		u.logf("udm convert failed", jobID, err)
		return
	}
	if err := u.UDM.Sink.Submit(ctx, cfg.UDMCredentialsKey, payload); err != nil {
		u.logf("udm submit failed", jobID, err)
	}
}

func (u *Uploader) recover(integration, jobID string) {
	if r := recover(); r != nil && u.Log != nil {
		u.Log.Error("siem integration panicked", zap.String("integration", integration), zap.String("job_id", jobID), zap.Any("recover", r))
	}
}

func (u *Uploader) logf(msg, jobID string, err error) {
	if u.Log == nil {
		return
	}
	u.Log.Warn(msg, zap.String("job_id", jobID), zap.Error(err))
}
