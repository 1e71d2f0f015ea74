// Package verify orchestrates the batch verification pipeline:
// normalize raw observations, drop duplicates, score data quality, save
// to the store, then cross-reference the external business registry.
//
// Every stage is failure-isolated: a record that can't be saved or
// verified is logged and recorded in the batch errors, and the rest of
// the batch keeps going. Registry verification is an enhancement layer —
// losing it never stops canonical records from being produced.
package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/dedupe"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/normalize"
	"github.com/sells-group/listings-cli/internal/quality"
	"github.com/sells-group/listings-cli/internal/store"
	"github.com/sells-group/listings-cli/pkg/registry"
)

// Matcher is the registry matching surface the pipeline depends on.
// Satisfied by *registry.Matcher.
type Matcher interface {
	FindMatch(ctx context.Context, name, postcode string) (*registry.Match, error)
}

// Options tunes pipeline pacing.
type Options struct {
	// VerifyDelay is the pause between registry verifications within a
	// batch, keeping the call rate under quota before the hard limiter
	// has to block. Default 100ms.
	VerifyDelay time.Duration

	// SweepDelay is the pause between records during a re-verification
	// sweep. Default 200ms.
	SweepDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.VerifyDelay <= 0 {
		o.VerifyDelay = 100 * time.Millisecond
	}
	if o.SweepDelay <= 0 {
		o.SweepDelay = 200 * time.Millisecond
	}
	return o
}

// Pipeline runs verification batches. It holds no per-batch state:
// each Run owns its records for the duration of the batch and reports
// through the JobState passed at construction.
type Pipeline struct {
	deduper *dedupe.Deduper
	matcher Matcher
	store   store.Store
	job     *model.JobState
	opts    Options
}

// New creates a Pipeline. matcher may be nil, in which case batches are
// produced without registry verification.
func New(deduper *dedupe.Deduper, matcher Matcher, st store.Store, job *model.JobState, opts Options) *Pipeline {
	if job == nil {
		job = model.NewJobState()
	}
	return &Pipeline{
		deduper: deduper,
		matcher: matcher,
		store:   st,
		job:     job,
		opts:    opts.withDefaults(),
	}
}

// Run processes one batch of raw observations and returns its statistics.
// An empty batch short-circuits with zero stats. The returned error is
// reserved for context cancellation before any work happened; everything
// else is reported through stats.Errors.
func (p *Pipeline) Run(ctx context.Context, industry string, observations []model.RawObservation) (*model.BatchStats, error) {
	log := zap.L().With(zap.String("industry", industry))
	p.job.Reset()
	stats := &model.BatchStats{
		Industry:  industry,
		StartedAt: time.Now().UTC(),
		Found:     len(observations),
	}
	defer func() {
		stats.FinishedAt = time.Now().UTC()
		p.job.SetPhase(model.PhaseDone)
	}()

	if len(observations) == 0 {
		log.Warn("pipeline: empty batch, nothing to do")
		return stats, nil
	}

	log.Info("pipeline: starting batch", zap.Int("observations", len(observations)))

	// Normalize, dropping records that fail closed.
	p.job.SetPhase(model.PhaseNormalizing)
	records := make([]*model.Record, 0, len(observations))
	for _, obs := range observations {
		if rec := normalize.Normalize(obs); rec != nil {
			records = append(records, rec)
		}
	}

	// Deduplicate within the batch.
	p.job.SetPhase(model.PhaseDeduping)
	records = p.deduper.Dedupe(records)

	// Validate, categorize and quality-score the survivors.
	p.job.SetPhase(model.PhaseScoring)
	scored := records[:0]
	for _, rec := range records {
		if !normalize.Validate(rec) {
			continue
		}
		if rec.Category == "" {
			rec.Category = normalize.InferCategory(rec.Name)
		}
		rec.DataQualityScore = quality.Score(rec)
		scored = append(scored, rec)
	}
	records = scored
	stats.AfterDedup = len(records)

	log.Info("pipeline: processed batch",
		zap.Int("found", stats.Found),
		zap.Int("after_dedup", stats.AfterDedup),
	)

	// Save canonical records. A failed save is one batch error, not a
	// batch abort.
	p.job.SetPhase(model.PhaseSaving)
	for _, rec := range records {
		id, err := p.store.UpsertBusiness(ctx, rec)
		if err != nil {
			log.Error("pipeline: save failed", zap.String("name", rec.Name), zap.Error(err))
			stats.Errors = append(stats.Errors, fmt.Sprintf("save error: %s - %v", rec.Name, err))
			continue
		}
		rec.ID = id
		stats.Saved++
	}

	// Registry verification pass.
	if p.matcher != nil {
		p.bulkVerify(ctx, records, stats)
	}

	log.Info("pipeline: batch complete",
		zap.Int("saved", stats.Saved),
		zap.Int("registry_matches", stats.RegistryMatches),
		zap.Int("errors", len(stats.Errors)),
	)
	return stats, nil
}

// bulkVerify cross-references saved records against the registry,
// sequentially so quota accounting stays exact. It checks the stop
// signal between records and keeps whatever was verified so far.
func (p *Pipeline) bulkVerify(ctx context.Context, records []*model.Record, stats *model.BatchStats) {
	log := zap.L()
	p.job.SetPhase(model.PhaseVerifying)

	attempts, failures := 0, 0
	var lastErr error

	for i, rec := range records {
		if ctx.Err() != nil || p.job.StopRequested() {
			log.Warn("pipeline: verification stopped early",
				zap.Int("verified", i),
				zap.Int("total", len(records)),
			)
			return
		}
		p.job.SetProgress(i, len(records))

		if rec.ID == "" {
			continue // never saved; nothing to update
		}

		attempts++
		if err := p.verifyRecord(ctx, rec, stats); err != nil {
			failures++
			lastErr = err
		}

		// Pace calls even before the hard limiter kicks in.
		if !sleepCtx(ctx, p.opts.VerifyDelay) {
			return
		}
	}
	p.job.SetProgress(len(records), len(records))

	// Verification failing for every single record means the registry
	// was unreachable for the batch; record it once.
	if attempts > 0 && failures == attempts {
		msg := "registry unreachable for entire batch"
		if lastErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, lastErr)
		}
		stats.Errors = append(stats.Errors, msg)
	}
}

// verifyRecord looks one record up in the registry. The returned error
// means the lookup itself failed; an absent match is a success.
func (p *Pipeline) verifyRecord(ctx context.Context, rec *model.Record, stats *model.BatchStats) error {
	log := zap.L()

	postcode := rec.Postcode
	if postcode == "" {
		postcode = normalize.ExtractPostcode(rec.Address)
	}

	match, err := p.matcher.FindMatch(ctx, rec.Name, postcode)
	if err != nil {
		// Record passes through unverified; the batch moves on.
		log.Error("pipeline: registry lookup failed", zap.String("name", rec.Name), zap.Error(err))
		return err
	}
	if match == nil {
		// No acceptable match. Not an error.
		return nil
	}

	MergeMatch(rec, match)

	if err := p.store.UpdateRegistryData(ctx, rec.ID, rec); err != nil {
		log.Error("pipeline: registry data save failed", zap.String("name", rec.Name), zap.Error(err))
		stats.Errors = append(stats.Errors, fmt.Sprintf("registry save error: %s - %v", rec.Name, err))
		return nil
	}

	stats.RegistryMatches++
	return nil
}

// MergeMatch copies accepted registry fields onto a record, preferring
// profile data over the search candidate where both are present.
func MergeMatch(rec *model.Record, match *registry.Match) {
	rec.RegistryNumber = match.CompanyNumber
	rec.RegistryStatus = match.CompanyStatus
	rec.SICCodes = match.SICCodes

	if match.Profile != nil {
		if match.Profile.CompanyStatus != "" {
			rec.RegistryStatus = match.Profile.CompanyStatus
		}
		rec.IncorporationDate = match.Profile.DateOfCreation
		if len(match.Profile.SICCodes) > 0 {
			rec.SICCodes = match.Profile.SICCodes
		}
	}

	score := match.Score
	rec.RegistryMatchScore = &score
	now := time.Now().UTC()
	rec.LastVerified = &now
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
