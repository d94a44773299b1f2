package schedule

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"upnext/models"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc/pool"
)

const (
	defaultMaxWorkers = 8
	retryAttempts     = 2 // one retry per provider call, then soft failure
	retryDelay        = 250 * time.Millisecond
)

// Service aggregates schedule data across providers for a set of tracked
// titles. It owns fan-out, season windowing and failure tolerance; date
// selection itself lives in Resolver.
type Service struct {
	catalog    ProviderAdapter
	airdates   ProviderAdapter
	community  ProviderAdapter
	regional   ProviderAdapter
	maxWorkers int
}

// New creates a schedule service over the four provider adapters. Any
// adapter may be nil; its provider simply contributes no records.
func New(catalog, airdates, community, regional ProviderAdapter) *Service {
	return &Service{
		catalog:    catalog,
		airdates:   airdates,
		community:  community,
		regional:   regional,
		maxWorkers: defaultMaxWorkers,
	}
}

// WithMaxWorkers bounds the per-title fan-out.
func (s *Service) WithMaxWorkers(n int) *Service {
	if n > 0 {
		s.maxWorkers = n
	}
	return s
}

// ResolveSchedule is the single entry point: it resolves every tracked
// title against all available providers and returns the entries falling
// inside the caller's window. Provider failures degrade the result, they
// never fail it; the degraded providers are reported back to the caller.
func (s *Service) ResolveSchedule(ctx context.Context, titles []models.TrackedTitle, window models.CalendarWindow, settings models.Settings) (*models.ScheduleResult, error) {
	runID := uuid.NewString()[:8]
	resolver := NewResolver(settings)
	log.Printf("[schedule] run=%s titles=%d window=%s..%s region=%s",
		runID, len(titles), window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"), resolver.ViewerRegion())

	var (
		mu          sync.Mutex
		entries     []models.ResolvedScheduleEntry
		failures    = make(map[models.ProviderName]bool)
		titleErrors = make(map[int64]string)
	)

	workers := pool.New().WithMaxGoroutines(s.maxWorkers)
	for _, title := range titles {
		title := title
		workers.Go(func() {
			if ctx.Err() != nil {
				return
			}
			if title.ID <= 0 {
				mu.Lock()
				titleErrors[title.ID] = fmt.Sprintf("%v: %q", ErrInvalidTitle, title.Name)
				mu.Unlock()
				log.Printf("[schedule] run=%s skipping title %q: no catalog reference", runID, title.Name)
				return
			}

			resolved, failed := s.resolveTitle(ctx, title, resolver, settings, runID)

			mu.Lock()
			entries = append(entries, resolved...)
			for _, p := range failed {
				failures[p] = true
			}
			mu.Unlock()
		})
	}
	workers.Wait()

	entries = applyEntryFilters(entries, settings)
	sortEntries(entries)
	windowed := FilterWindow(entries, window)

	result := &models.ScheduleResult{
		Entries:         windowed,
		PartialFailures: sortedProviders(failures),
	}
	if len(titleErrors) > 0 {
		result.TitleErrors = titleErrors
	}

	log.Printf("[schedule] run=%s done entries=%d windowed=%d degraded=%v",
		runID, len(entries), len(windowed), result.PartialFailures)
	return result, nil
}

// resolveTitle fetches and resolves one title. A failed provider degrades
// date precision for this title; it never aborts it.
func (s *Service) resolveTitle(ctx context.Context, title models.TrackedTitle, resolver *Resolver, settings models.Settings, runID string) ([]models.ResolvedScheduleEntry, []models.ProviderName) {
	switch title.Kind {
	case models.MediaMovie:
		return s.resolveMovie(ctx, title, resolver, runID)
	default:
		return s.resolveSeries(ctx, title, resolver, settings, runID)
	}
}

func (s *Service) resolveMovie(ctx context.Context, title models.TrackedTitle, resolver *Resolver, runID string) ([]models.ResolvedScheduleEntry, []models.ProviderName) {
	records, failed := s.fetchAll(ctx, title, nil, runID,
		[]ProviderAdapter{s.catalog, s.regional})
	entries := resolver.ResolveMovie(title, records)
	return entries, failed
}

func (s *Service) resolveSeries(ctx context.Context, title models.TrackedTitle, resolver *Resolver, settings models.Settings, runID string) ([]models.ResolvedScheduleEntry, []models.ProviderName) {
	// The roster comes from the catalog; it decides which seasons are
	// worth fetching before the adapters fan out.
	seasons, rosterErr := s.listSeasons(ctx, title)
	var failed []models.ProviderName
	if rosterErr != nil {
		log.Printf("[schedule] run=%s tmdb roster failed title=%d: %v", runID, title.ID, rosterErr)
		failed = append(failed, models.ProviderTMDB)
	}
	wanted := seasonsOfInterest(seasons)

	adapters := []ProviderAdapter{s.catalog}
	if title.TVDBID > 0 {
		adapters = append(adapters, s.airdates)
	}
	if settings.TraktAccessToken != "" && s.community != nil {
		adapter := s.community
		if tokenAware, ok := adapter.(TokenAware); ok {
			adapter = tokenAware.WithToken(settings.TraktAccessToken)
		}
		adapters = append(adapters, adapter)
	}

	records, fetchFailed := s.fetchAll(ctx, title, wanted, runID, adapters)
	failed = append(failed, fetchFailed...)

	// Older seasons are assumed stable; restrict resolution to the seasons
	// the roster selected.
	if len(wanted) > 0 {
		records = filterSeasons(records, wanted)
	}

	var entries []models.ResolvedScheduleEntry
	for _, group := range groupByEpisode(records) {
		if entry, ok := resolver.ResolveEpisode(title, group); ok {
			entries = append(entries, entry)
		}
	}
	return entries, failed
}

// fetchAll runs the adapter calls for one title concurrently and joins the
// results. Each call gets at most one retry before counting as a soft
// failure.
func (s *Service) fetchAll(ctx context.Context, title models.TrackedTitle, seasons []int, runID string, adapters []ProviderAdapter) ([]models.ProviderRecord, []models.ProviderName) {
	// Each goroutine writes its own slot so the joined record slice always
	// follows adapter registration order regardless of completion order.
	results := make([][]models.ProviderRecord, len(adapters))
	errs := make([]error, len(adapters))

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		if adapter == nil {
			continue
		}
		i, adapter := i, adapter
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.fetchWithRetry(ctx, adapter, title, seasons)
		}()
	}
	wg.Wait()

	var (
		records []models.ProviderRecord
		merr    *multierror.Error
		failed  []models.ProviderName
	)
	for i, adapter := range adapters {
		if adapter == nil {
			continue
		}
		if errs[i] != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", adapter.Name(), errs[i]))
			failed = append(failed, adapter.Name())
			continue
		}
		records = append(records, results[i]...)
	}

	if err := merr.ErrorOrNil(); err != nil {
		log.Printf("[schedule] run=%s title=%d degraded: %v", runID, title.ID, err)
	}
	return records, failed
}

func (s *Service) fetchWithRetry(ctx context.Context, adapter ProviderAdapter, title models.TrackedTitle, seasons []int) ([]models.ProviderRecord, error) {
	var records []models.ProviderRecord
	err := retry.Do(
		func() error {
			recs, err := adapter.Fetch(ctx, title, seasons)
			if err != nil {
				return err
			}
			records = recs
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) listSeasons(ctx context.Context, title models.TrackedTitle) ([]models.SeasonInfo, error) {
	lister, ok := s.catalog.(SeasonLister)
	if !ok {
		return nil, nil
	}
	return lister.ListSeasons(ctx, title)
}

// seasonsOfInterest picks the two most-recently-aired seasons plus season 0
// when present. Returns nil when the roster is unknown, which fetches
// everything.
func seasonsOfInterest(seasons []models.SeasonInfo) []int {
	if len(seasons) == 0 {
		return nil
	}

	var regular []models.SeasonInfo
	hasSpecials := false
	for _, season := range seasons {
		if season.Number == 0 {
			hasSpecials = true
			continue
		}
		regular = append(regular, season)
	}

	sort.SliceStable(regular, func(i, j int) bool {
		if !regular[i].AirDate.Equal(regular[j].AirDate) {
			return regular[i].AirDate.After(regular[j].AirDate)
		}
		return regular[i].Number > regular[j].Number
	})

	var wanted []int
	for i, season := range regular {
		if i >= 2 {
			break
		}
		wanted = append(wanted, season.Number)
	}
	if hasSpecials {
		wanted = append(wanted, 0)
	}
	sort.Ints(wanted)
	return wanted
}

func filterSeasons(records []models.ProviderRecord, seasons []int) []models.ProviderRecord {
	want := make(map[int]bool, len(seasons))
	for _, n := range seasons {
		want[n] = true
	}
	out := records[:0:0]
	for _, rec := range records {
		if want[rec.SeasonNumber] {
			out = append(out, rec)
		}
	}
	return out
}

// groupByEpisode buckets records by (season, episode) in a deterministic
// order so repeated runs over the same provider state resolve identically.
func groupByEpisode(records []models.ProviderRecord) [][]models.ProviderRecord {
	byKey := make(map[[2]int][]models.ProviderRecord)
	var keys [][2]int
	for _, rec := range records {
		key := [2]int{rec.SeasonNumber, rec.EpisodeNumber}
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], rec)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	groups := make([][]models.ProviderRecord, 0, len(keys))
	for _, key := range keys {
		groups = append(groups, byKey[key])
	}
	return groups
}

// applyEntryFilters drops entries the settings snapshot excludes and
// collapses any duplicate schedule slots across titles.
func applyEntryFilters(entries []models.ResolvedScheduleEntry, settings models.Settings) []models.ResolvedScheduleEntry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		if settings.IgnoreSpecials && e.MediaKind == models.MediaSeries && e.SeasonNumber == 0 {
			continue
		}
		if settings.HideTheatrical && e.MediaKind == models.MediaMovie && e.ReleaseKind == models.ReleaseTheatrical {
			continue
		}
		if seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		out = append(out, e)
	}
	return out
}

func sortEntries(entries []models.ResolvedScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AirDate != b.AirDate {
			return a.AirDate < b.AirDate
		}
		if a.TitleID != b.TitleID {
			return a.TitleID < b.TitleID
		}
		if a.SeasonNumber != b.SeasonNumber {
			return a.SeasonNumber < b.SeasonNumber
		}
		if a.EpisodeNumber != b.EpisodeNumber {
			return a.EpisodeNumber < b.EpisodeNumber
		}
		return a.ReleaseKind < b.ReleaseKind
	})
}

func sortedProviders(failures map[models.ProviderName]bool) []models.ProviderName {
	if len(failures) == 0 {
		return nil
	}
	out := make([]models.ProviderName, 0, len(failures))
	for p := range failures {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
