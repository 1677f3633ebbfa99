package executor

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riftscan/sentinel/internal/objectstore"
)

// RuleStat is one row of the statistics document's per_rule list.
type RuleStat struct {
	Region    string `json:"region"`
	Rule      string `json:"rule"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

// Statistics is the per-job execution statistics document persisted
// gzip-compressed to the statistics bucket.
type Statistics struct {
	Tenant    string     `json:"tenant"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt time.Time  `json:"stopped_at"`
	PerRule   []RuleStat `json:"per_rule"`
}

// buildStatistics flattens every region's result into the flat per_rule
// list the statistics document carries.
func buildStatistics(tenant string, startedAt, stoppedAt time.Time, results []RegionResult) Statistics {
	stats := Statistics{Tenant: tenant, StartedAt: startedAt, StoppedAt: stoppedAt}
	for _, res := range results {
		for rule := range res.Succeeded {
			stats.PerRule = append(stats.PerRule, RuleStat{Region: res.Region, Rule: rule, Status: "SUCCEEDED"})
		}
		for _, f := range res.Failures {
			stats.PerRule = append(stats.PerRule, RuleStat{
				Region:    res.Region,
				Rule:      f.Policy,
				Status:    string(f.Kind),
				Message:   f.Message,
				Traceback: f.Trace,
			})
		}
	}
	return stats
}

func writeStatistics(ctx context.Context, store objectstore.Store, jobID string, stats Statistics) error {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gw).Encode(stats); err != nil {
		gw.Close()
		return fmt.Errorf("executor: encode statistics: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("executor: close statistics gzip writer: %w", err)
	}
	if err := store.Put(ctx, objectstore.StatisticsKey(jobID), &buf, "application/gzip"); err != nil {
		return fmt.Errorf("executor: write statistics: %w", err)
	}
	return nil
}
