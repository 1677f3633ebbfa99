package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riftscan/sentinel/internal/apierr"
	"github.com/riftscan/sentinel/internal/store"
)

// checkCooldown enforces the last-scan cooldown: if the
// customer has a last_scan_threshold_seconds setting configured, reject
// a new submission while the tenant's most recent succeeded job is still
// within that threshold, reporting how much longer the caller must wait.
func checkCooldown(ctx context.Context, settings store.TenantSettingsStore, jobs store.JobStore, tenantName, customer string, now time.Time) error {
	threshold, ok, err := settings.LastScanThresholdSeconds(ctx, customer)
	if err != nil {
		return fmt.Errorf("submission: load cooldown setting: %w", err)
	}
	if !ok || threshold <= 0 {
		return nil
	}

	last, err := jobs.MostRecentSucceeded(ctx, tenantName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("submission: load most recent succeeded job: %w", err)
	}

	readyAt := last.SubmittedAt.Add(time.Duration(threshold) * time.Second)
	if now.Before(readyAt) {
		remaining := readyAt.Sub(now)
		return apierr.New(apierr.Forbidden, fmt.Sprintf("cooldown active, %s remaining", remaining.Round(time.Second)))
	}
	return nil
}
