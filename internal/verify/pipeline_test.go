package verify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings-cli/internal/dedupe"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/store"
	"github.com/sells-group/listings-cli/pkg/registry"
)

type fakeStore struct {
	mu sync.Mutex

	saved           []*model.Record
	registryUpdates map[string]*model.Record
	unverified      []model.Record

	upsertErr   error
	upsertErrOn string // business name that fails to save
	updateErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{registryUpdates: make(map[string]*model.Record)}
}

func (s *fakeStore) UpsertBusiness(ctx context.Context, rec *model.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil && (s.upsertErrOn == "" || s.upsertErrOn == rec.Name) {
		return "", s.upsertErr
	}
	s.saved = append(s.saved, rec)
	return fmt.Sprintf("id-%d", len(s.saved)), nil
}

func (s *fakeStore) UpdateRegistryData(ctx context.Context, id string, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.registryUpdates[id] = rec
	return nil
}

func (s *fakeStore) ListUnverified(ctx context.Context, limit int) ([]model.Record, error) {
	if limit < len(s.unverified) {
		return s.unverified[:limit], nil
	}
	return s.unverified, nil
}

func (s *fakeStore) LogSearch(ctx context.Context, industry, searchTerm, location string, resultsCount int) error {
	return nil
}

func (s *fakeStore) ContactStats(ctx context.Context) (*store.ContactStats, error) {
	return &store.ContactStats{}, nil
}

func (s *fakeStore) Migrate(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                      { return nil }

type fakeMatcher struct {
	mu      sync.Mutex
	calls   int
	matchFn func(name, postcode string) (*registry.Match, error)
}

func (m *fakeMatcher) FindMatch(ctx context.Context, name, postcode string) (*registry.Match, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.matchFn == nil {
		return nil, nil
	}
	return m.matchFn(name, postcode)
}

func (m *fakeMatcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fastOpts() Options {
	return Options{VerifyDelay: time.Millisecond, SweepDelay: time.Millisecond}
}

func newTestPipeline(st store.Store, matcher Matcher) (*Pipeline, *model.JobState) {
	job := model.NewJobState()
	return New(dedupe.New(0), matcher, st, job, fastOpts()), job
}

func acceptAll(number string) func(name, postcode string) (*registry.Match, error) {
	return func(name, postcode string) (*registry.Match, error) {
		return &registry.Match{
			Candidate: registry.Candidate{
				CompanyNumber: number,
				CompanyStatus: "active",
			},
			Profile: &registry.CompanyProfile{
				CompanyNumber:  number,
				CompanyStatus:  "active",
				DateOfCreation: "2015-03-02",
				SICCodes:       []string{"56102"},
			},
			Score: 0.95,
		}, nil
	}
}

func TestRun_FullBatch(t *testing.T) {
	st := newFakeStore()
	matcher := &fakeMatcher{matchFn: acceptAll("01234567")}
	p, _ := newTestPipeline(st, matcher)

	observations := []model.RawObservation{
		{
			Name:    "The Corner Cafe Ltd",
			Address: "12 High Street, Leeds LS1 4DY",
			Phone:   "0113 496 0000",
			Website: "cornercafe.co.uk",
		},
		{
			// Duplicate of the first under a different rendering.
			Name:    "the corner cafe",
			Address: "12 High St, Leeds LS1 4DY",
		},
		{
			Name:    "High Street Bakery",
			Address: "14 High Street, Leeds LS1 4DY",
		},
		{
			// No name: dropped during normalization.
			Address: "1 Nameless Road",
		},
	}

	stats, err := p.Run(context.Background(), "restaurants", observations)
	require.NoError(t, err)

	assert.Equal(t, "restaurants", stats.Industry)
	assert.Equal(t, 4, stats.Found)
	assert.Equal(t, 2, stats.AfterDedup)
	assert.Equal(t, 2, stats.Saved)
	assert.Equal(t, 2, stats.RegistryMatches)
	assert.Empty(t, stats.Errors)
	assert.False(t, stats.FinishedAt.Before(stats.StartedAt))

	require.Len(t, st.saved, 2)
	first := st.saved[0]
	assert.Equal(t, "The Corner Cafe", first.Name)
	assert.Equal(t, "LS1 4DY", first.Postcode)
	assert.Equal(t, "https://cornercafe.co.uk", first.Website)
	assert.Equal(t, "cafe", first.Category)
	assert.Greater(t, first.DataQualityScore, 0.0)

	// Registry fields merged and persisted.
	require.Len(t, st.registryUpdates, 2)
	assert.Equal(t, "01234567", first.RegistryNumber)
	assert.Equal(t, "2015-03-02", first.IncorporationDate)
	assert.Equal(t, []string{"56102"}, first.SICCodes)
	require.NotNil(t, first.RegistryMatchScore)
	assert.InDelta(t, 0.95, *first.RegistryMatchScore, 0.001)
	assert.NotNil(t, first.LastVerified)
	assert.True(t, first.Verified())
}

func TestRun_EmptyBatch(t *testing.T) {
	st := newFakeStore()
	p, job := newTestPipeline(st, &fakeMatcher{})

	stats, err := p.Run(context.Background(), "retail", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Found)
	assert.Equal(t, 0, stats.Saved)
	assert.Empty(t, stats.Errors)
	assert.Empty(t, st.saved)
	assert.Equal(t, model.PhaseDone, job.Snapshot().Phase)
}

func TestRun_NoMatcherSkipsVerification(t *testing.T) {
	st := newFakeStore()
	p, _ := newTestPipeline(st, nil)

	stats, err := p.Run(context.Background(), "retail", []model.RawObservation{
		{Name: "High Street Bakery", Address: "14 High Street, Leeds LS1 4DY"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)
	assert.Equal(t, 0, stats.RegistryMatches)
	assert.Empty(t, st.registryUpdates)
}

func TestRun_NoMatchIsNotAnError(t *testing.T) {
	st := newFakeStore()
	matcher := &fakeMatcher{} // always returns nil, nil
	p, _ := newTestPipeline(st, matcher)

	stats, err := p.Run(context.Background(), "retail", []model.RawObservation{
		{Name: "High Street Bakery", Address: "14 High Street, Leeds LS1 4DY"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Saved)
	assert.Equal(t, 0, stats.RegistryMatches)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, matcher.callCount())
	assert.False(t, st.saved[0].Verified())
}

func TestRun_SaveFailureIsIsolated(t *testing.T) {
	st := newFakeStore()
	st.upsertErr = eris.New("constraint violation")
	st.upsertErrOn = "Broken Bakery"

	matcher := &fakeMatcher{matchFn: acceptAll("01234567")}
	p, _ := newTestPipeline(st, matcher)

	stats, err := p.Run(context.Background(), "retail", []model.RawObservation{
		{Name: "Broken Bakery", Address: "1 Fail Street, Leeds LS1 4DY"},
		{Name: "Working Butcher", Address: "2 Fine Street, Leeds LS2 8JT"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Saved)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "Broken Bakery")

	// Only the saved record gets verified.
	assert.Equal(t, 1, matcher.callCount())
	assert.Equal(t, 1, stats.RegistryMatches)
}

func TestRun_RegistryDownForWholeBatch(t *testing.T) {
	st := newFakeStore()
	matcher := &fakeMatcher{matchFn: func(name, postcode string) (*registry.Match, error) {
		return nil, eris.New("connection refused")
	}}
	p, _ := newTestPipeline(st, matcher)

	stats, err := p.Run(context.Background(), "retail", []model.RawObservation{
		{Name: "High Street Bakery", Address: "14 High Street, Leeds LS1 4DY"},
		{Name: "Corner Butcher", Address: "2 Fine Street, Leeds LS2 8JT"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Saved)
	assert.Equal(t, 0, stats.RegistryMatches)
	require.NotEmpty(t, stats.Errors)
	assert.Contains(t, stats.Errors[len(stats.Errors)-1], "registry unreachable for entire batch")
}

func TestRun_RegistrySaveFailureRecorded(t *testing.T) {
	st := newFakeStore()
	st.updateErr = eris.New("disk full")
	matcher := &fakeMatcher{matchFn: acceptAll("01234567")}
	p, _ := newTestPipeline(st, matcher)

	stats, err := p.Run(context.Background(), "retail", []model.RawObservation{
		{Name: "High Street Bakery", Address: "14 High Street, Leeds LS1 4DY"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Saved)
	assert.Equal(t, 0, stats.RegistryMatches)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "registry save error")
}

func TestRun_StopRequestHaltsVerification(t *testing.T) {
	st := newFakeStore()
	matcher := &fakeMatcher{}
	p, job := newTestPipeline(st, matcher)

	// Stop after the first lookup; the rest of the batch is skipped.
	matcher.matchFn = func(name, postcode string) (*registry.Match, error) {
		job.RequestStop()
		return nil, nil
	}

	stats, err := p.Run(context.Background(), "retail", []model.RawObservation{
		{Name: "First Bakery", Address: "1 High Street, Leeds LS1 4DY"},
		{Name: "Second Butcher", Address: "2 High Street, Leeds LS2 8JT"},
		{Name: "Third Grocer", Address: "3 High Street, Leeds LS6 2UE"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Saved)
	assert.Equal(t, 1, matcher.callCount())
}

func TestRun_CancellationReturnsPartialStats(t *testing.T) {
	st := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())

	matcher := &fakeMatcher{matchFn: func(name, postcode string) (*registry.Match, error) {
		cancel()
		return nil, nil
	}}
	p, _ := newTestPipeline(st, matcher)

	stats, err := p.Run(ctx, "retail", []model.RawObservation{
		{Name: "First Bakery", Address: "1 High Street, Leeds LS1 4DY"},
		{Name: "Second Butcher", Address: "2 High Street, Leeds LS2 8JT"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Saved)
	assert.Equal(t, 1, matcher.callCount())
}

func TestMergeMatch_ProfilePreferred(t *testing.T) {
	rec := &model.Record{Name: "Corner Cafe"}
	MergeMatch(rec, &registry.Match{
		Candidate: registry.Candidate{
			CompanyNumber: "01234567",
			CompanyStatus: "active",
			SICCodes:      []string{"99999"},
		},
		Profile: &registry.CompanyProfile{
			CompanyStatus:  "liquidation",
			DateOfCreation: "2015-03-02",
			SICCodes:       []string{"56102"},
		},
		Score: 0.8,
	})

	assert.Equal(t, "01234567", rec.RegistryNumber)
	assert.Equal(t, "liquidation", rec.RegistryStatus)
	assert.Equal(t, "2015-03-02", rec.IncorporationDate)
	assert.Equal(t, []string{"56102"}, rec.SICCodes)
	require.NotNil(t, rec.RegistryMatchScore)
	assert.InDelta(t, 0.8, *rec.RegistryMatchScore, 0.001)
	require.NotNil(t, rec.LastVerified)
}

func TestMergeMatch_NoProfile(t *testing.T) {
	rec := &model.Record{Name: "Corner Cafe"}
	MergeMatch(rec, &registry.Match{
		Candidate: registry.Candidate{CompanyNumber: "01234567", CompanyStatus: "active"},
		Score:     0.7,
	})

	assert.Equal(t, "01234567", rec.RegistryNumber)
	assert.Equal(t, "active", rec.RegistryStatus)
	assert.Empty(t, rec.IncorporationDate)
}

func TestSweep(t *testing.T) {
	st := newFakeStore()
	st.unverified = []model.Record{
		{ID: "id-1", Name: "Stale Bakery", Postcode: "LS1 4DY"},
		{ID: "id-2", Name: "Unknown Grocer", Postcode: "LS2 8JT"},
	}

	matcher := &fakeMatcher{matchFn: func(name, postcode string) (*registry.Match, error) {
		if name == "Stale Bakery" {
			return &registry.Match{
				Candidate: registry.Candidate{CompanyNumber: "01234567", CompanyStatus: "active"},
				Score:     0.9,
			}, nil
		}
		return nil, nil
	}}
	p, _ := newTestPipeline(st, matcher)

	stats, err := p.Sweep(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Checked)
	assert.Equal(t, 1, stats.Verified)
	assert.Empty(t, stats.Errors)
	require.Contains(t, st.registryUpdates, "id-1")
	assert.Equal(t, "01234567", st.registryUpdates["id-1"].RegistryNumber)
}

func TestSweep_LookupFailureRecordedAndSkipped(t *testing.T) {
	st := newFakeStore()
	st.unverified = []model.Record{
		{ID: "id-1", Name: "Stale Bakery", Postcode: "LS1 4DY"},
		{ID: "id-2", Name: "Unknown Grocer", Postcode: "LS2 8JT"},
	}

	matcher := &fakeMatcher{matchFn: func(name, postcode string) (*registry.Match, error) {
		if name == "Stale Bakery" {
			return nil, eris.New("connection refused")
		}
		return &registry.Match{
			Candidate: registry.Candidate{CompanyNumber: "07654321", CompanyStatus: "active"},
			Score:     0.9,
		}, nil
	}}
	p, _ := newTestPipeline(st, matcher)

	stats, err := p.Sweep(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Checked)
	assert.Equal(t, 1, stats.Verified)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "Stale Bakery")
}

func TestSweep_NothingToDo(t *testing.T) {
	st := newFakeStore()
	p, _ := newTestPipeline(st, &fakeMatcher{})

	stats, err := p.Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Checked)
}

func TestSweep_NoMatcher(t *testing.T) {
	st := newFakeStore()
	st.unverified = []model.Record{{ID: "id-1", Name: "Stale Bakery"}}
	p, _ := newTestPipeline(st, nil)

	stats, err := p.Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Checked)
}
