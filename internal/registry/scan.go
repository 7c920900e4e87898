package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/jobwatch/internal/sites"
)

// ScanOne scans a single site and records the outcome. The provider call
// runs without r.mu and is not cancelled by ctx once issued; its deadline
// is the provider transport timeout.
//
// On failure the previous lastChecked and lastResult are kept and the
// provider error is returned. If the site is deleted while the call is in
// flight the outcome is discarded and ErrNotFound is returned.
func (r *Registry) ScanOne(ctx context.Context, id string) (sites.ScanResult, error) {
	r.lane.Lock()
	defer r.lane.Unlock()

	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return sites.ScanResult{}, ErrNotFound
	}
	if err := r.entries[i].BeginScan(); err != nil {
		r.mu.Unlock()
		return sites.ScanResult{}, err
	}
	e := r.entries[i]
	r.saveLocked(ctx)
	r.mu.Unlock()
	r.events.publish(Event{Kind: EventChanged, ID: id, Status: sites.StatusScanning})

	r.logger.Debug("scanning site", "site_id", id, "url", e.URL)
	res, scanErr := r.scanner.Scan(context.WithoutCancel(ctx), e.Name, e.URL, e.Keywords)

	r.mu.Lock()
	i = r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		r.logger.Info("site deleted during scan, discarding outcome", "site_id", id)
		return sites.ScanResult{}, fmt.Errorf("%w: deleted during scan", ErrNotFound)
	}
	if scanErr == nil {
		if err := r.entries[i].Succeed(res, r.clock.Now()); err != nil {
			scanErr = err
		}
	}
	if scanErr != nil {
		// Succeed leaves the status untouched on error, so Fail is legal here.
		_ = r.entries[i].Fail()
	}
	st := r.entries[i].Status
	r.saveLocked(ctx)
	r.mu.Unlock()
	r.events.publish(Event{Kind: EventChanged, ID: id, Status: st})

	if scanErr != nil {
		r.logger.Warn("scan failed", "site_id", id, "url", e.URL, "error", scanErr)
		return sites.ScanResult{}, scanErr
	}
	r.logger.Info("scan succeeded", "site_id", id, "sources", len(res.Sources))
	if res.Sources == nil {
		res.Sources = []sites.Source{}
	}
	return res, nil
}

// ScanAll scans every site sequentially in the display order captured at
// the start. A failure never stops the loop; sites deleted meanwhile are
// skipped. Cancelling ctx stops the loop before the next site, never in
// the middle of a provider call. Re-entry returns ErrBulkScanInProgress.
func (r *Registry) ScanAll(ctx context.Context) (Summary, error) {
	run, err := r.StartScanAll()
	if err != nil {
		return Summary{}, err
	}
	return run(ctx)
}

// StartScanAll claims the bulk flag and captures the display order without
// scanning anything. BulkScanning reports true as soon as it returns. The
// returned run performs the scan and releases the flag; it must be called
// exactly once.
func (r *Registry) StartScanAll() (run func(ctx context.Context) (Summary, error), err error) {
	r.mu.Lock()
	if r.bulk {
		r.mu.Unlock()
		return nil, ErrBulkScanInProgress
	}
	r.bulk = true
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	r.mu.Unlock()

	r.events.publish(Event{Kind: EventBulkStarted})
	return func(ctx context.Context) (Summary, error) { return r.runBulk(ctx, ids) }, nil
}

func (r *Registry) runBulk(ctx context.Context, ids []string) (Summary, error) {
	defer func() {
		r.mu.Lock()
		r.bulk = false
		r.mu.Unlock()
		r.events.publish(Event{Kind: EventBulkFinished})
	}()

	r.logger.Info("bulk scan started", "sites", len(ids))
	var sum Summary
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			r.logger.Info("bulk scan interrupted", "scanned", sum.Scanned, "remaining", len(ids)-sum.Scanned-sum.Skipped)
			return sum, err
		}
		if _, ok := r.Get(id); !ok {
			sum.Skipped++
			continue
		}

		_, err := r.ScanOne(ctx, id)
		switch {
		case err == nil:
			sum.Scanned++
			sum.Succeeded++
		case isDeleted(err):
			sum.Skipped++
		default:
			sum.Scanned++
			sum.Failed++
		}
	}
	r.logger.Info("bulk scan finished", "scanned", sum.Scanned, "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

func isDeleted(err error) bool {
	return errors.Is(err, ErrNotFound)
}
