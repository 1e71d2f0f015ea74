package verify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/model"
)

// SweepStats summarizes a re-verification sweep.
type SweepStats struct {
	Checked  int      `json:"checked"`
	Verified int      `json:"verified"`
	Errors   []string `json:"errors,omitempty"`
}

// Sweep re-verifies stored records that were never matched against the
// registry or whose verification has gone stale. Per-record failures are
// recorded and skipped; the sweep stops early on cancellation or a stop
// request, returning partial stats.
func (p *Pipeline) Sweep(ctx context.Context, limit int) (*SweepStats, error) {
	log := zap.L()
	p.job.Reset()
	stats := &SweepStats{}

	if p.matcher == nil {
		return stats, nil
	}

	records, err := p.store.ListUnverified(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		log.Info("sweep: no unverified businesses")
		return stats, nil
	}

	p.job.SetPhase(model.PhaseVerifying)
	for i := range records {
		if ctx.Err() != nil || p.job.StopRequested() {
			log.Warn("sweep: stopped early", zap.Int("checked", stats.Checked))
			break
		}
		p.job.SetProgress(i, len(records))

		rec := &records[i]
		stats.Checked++

		match, err := p.matcher.FindMatch(ctx, rec.Name, rec.Postcode)
		if err != nil {
			log.Error("sweep: registry lookup failed", zap.String("name", rec.Name), zap.Error(err))
			stats.Errors = append(stats.Errors, fmt.Sprintf("verify error: %s - %v", rec.Name, err))
			continue
		}
		if match == nil {
			if !sleepCtx(ctx, p.opts.SweepDelay) {
				break
			}
			continue
		}

		MergeMatch(rec, match)
		if err := p.store.UpdateRegistryData(ctx, rec.ID, rec); err != nil {
			log.Error("sweep: registry data save failed", zap.String("name", rec.Name), zap.Error(err))
			stats.Errors = append(stats.Errors, fmt.Sprintf("save error: %s - %v", rec.Name, err))
			continue
		}

		stats.Verified++
		log.Info("sweep: verified",
			zap.String("name", rec.Name),
			zap.String("company_number", rec.RegistryNumber),
		)

		if !sleepCtx(ctx, p.opts.SweepDelay) {
			break
		}
	}
	p.job.SetPhase(model.PhaseDone)

	return stats, nil
}
