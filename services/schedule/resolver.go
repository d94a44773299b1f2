package schedule

import (
	"sort"
	"time"

	"upnext/models"
)

// episodePrecedence is the explicit provider order for episode dates:
// community timestamps are the most timely and precise, then the dedicated
// airdate provider, then the catalog's nominal date.
var episodePrecedence = []models.ProviderName{
	models.ProviderTrakt,
	models.ProviderTVDB,
	models.ProviderTMDB,
}

// moviePrecedence breaks date ties between movie release candidates.
var moviePrecedence = []models.ProviderName{
	models.ProviderReleases,
	models.ProviderTMDB,
}

// Resolver picks the canonical date for one episode or one movie release
// bucket from the records all providers supplied for it. Pure; safe for
// concurrent use.
type Resolver struct {
	viewerRegion string
	timeShift    bool
}

// NewResolver builds a resolver from the run's settings snapshot.
func NewResolver(settings models.Settings) *Resolver {
	return &Resolver{
		viewerRegion: InferViewerRegion(settings.ViewerRegionOverride, settings.Locale),
		timeShift:    settings.TimeShiftEnabled,
	}
}

// ViewerRegion returns the region the resolver resolves dates for.
func (r *Resolver) ViewerRegion() string {
	return r.viewerRegion
}

// ResolveEpisode selects the best record for a single episode and turns it
// into a schedule entry. Returns false when no record carries a usable date.
func (r *Resolver) ResolveEpisode(title models.TrackedTitle, records []models.ProviderRecord) (models.ResolvedScheduleEntry, bool) {
	chosen, ok := pickEpisodeRecord(records)
	if !ok {
		return models.ResolvedScheduleEntry{}, false
	}

	day := r.canonicalDay(title, chosen, networksOf(records))
	display := displayRecord(records)

	entry := models.ResolvedScheduleEntry{
		TitleID:       title.ID,
		MediaKind:     models.MediaSeries,
		SeasonNumber:  chosen.SeasonNumber,
		EpisodeNumber: chosen.EpisodeNumber,
		AirDate:       day.Format("2006-01-02"),
		Provider:      chosen.Provider,
		Title:         title.Name,
		EpisodeTitle:  display.EpisodeName,
		Overview:      display.Overview,
		PosterURL:     posterFor(title, display),
		Year:          title.Year,
	}
	return entry, true
}

// ResolveMovie produces up to two entries for a movie: its cinema release
// and its home (digital/physical) release. Candidates are partitioned by
// kind; within a bucket a viewer-region record wins, otherwise the earliest
// date does, ties broken by provider precedence.
func (r *Resolver) ResolveMovie(title models.TrackedTitle, records []models.ProviderRecord) []models.ResolvedScheduleEntry {
	var cinema, home []models.ProviderRecord
	var catalogFallback *models.ProviderRecord

	for i := range records {
		rec := records[i]
		if rec.AirDate.IsZero() {
			continue
		}
		if rec.Provider == models.ProviderTMDB && catalogFallback == nil {
			catalogFallback = &records[i]
		}
		if rec.Provider != models.ProviderReleases {
			continue
		}
		switch rec.ReleaseKind {
		case models.ReleaseTheatrical, models.ReleasePremiere:
			cinema = append(cinema, rec)
		case models.ReleaseDigital, models.ReleasePhysical:
			home = append(home, rec)
		}
	}

	display := displayRecord(records)
	var entries []models.ResolvedScheduleEntry

	if len(cinema) == 0 && len(home) == 0 {
		// No regional data at all: the catalog's primary date stands in,
		// tagged theatrical.
		if catalogFallback == nil {
			return nil
		}
		return []models.ResolvedScheduleEntry{
			r.movieEntry(title, *catalogFallback, models.ReleaseTheatrical, display),
		}
	}

	if rec, ok := r.pickMovieRecord(cinema); ok {
		entries = append(entries, r.movieEntry(title, rec, models.ReleaseTheatrical, display))
	}
	if rec, ok := r.pickMovieRecord(home); ok {
		entries = append(entries, r.movieEntry(title, rec, models.ReleaseDigital, display))
	}
	return entries
}

// pickMovieRecord applies the per-bucket policy after collapsing records
// that restate the same (date, kind) fact.
func (r *Resolver) pickMovieRecord(bucket []models.ProviderRecord) (models.ProviderRecord, bool) {
	bucket = dedupeByDateKind(bucket)
	if len(bucket) == 0 {
		return models.ProviderRecord{}, false
	}

	regional := bucket[:0:0]
	for _, rec := range bucket {
		if rec.Country == r.viewerRegion {
			regional = append(regional, rec)
		}
	}
	pool := bucket
	if len(regional) > 0 {
		pool = regional
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if !pool[i].AirDate.Equal(pool[j].AirDate) {
			return pool[i].AirDate.Before(pool[j].AirDate)
		}
		return providerRank(pool[i].Provider, moviePrecedence) < providerRank(pool[j].Provider, moviePrecedence)
	})
	return pool[0], true
}

func (r *Resolver) movieEntry(title models.TrackedTitle, rec models.ProviderRecord, kind models.ReleaseKind, display models.ProviderRecord) models.ResolvedScheduleEntry {
	day := dateOnly(rec.AirDate).AddDate(0, 0, title.DateOffsetDays)
	return models.ResolvedScheduleEntry{
		TitleID:     title.ID,
		MediaKind:   models.MediaMovie,
		AirDate:     day.Format("2006-01-02"),
		Provider:    rec.Provider,
		ReleaseKind: kind,
		Title:       title.Name,
		Overview:    display.Overview,
		PosterURL:   posterFor(title, display),
		Year:        title.Year,
	}
}

// canonicalDay converts the chosen record into the viewer's perceived local
// day. Bare dates from global simultaneous platforms get the canonical
// 08:00:00Z instant injected, which pins the day and exempts the record
// from the eastern shift; remaining bare dates shift one day forward when
// the origin/viewer pairing calls for it. Timestamps are taken as-is.
func (r *Resolver) canonicalDay(title models.TrackedTitle, rec models.ProviderRecord, networks []string) time.Time {
	t := rec.AirDate.UTC()
	hasTime := rec.HasTime

	if !hasTime && IsGlobalSimultaneousReleaser(networks) {
		t = injectGlobalReleaseTime(t)
		hasTime = true
	}

	day := dateOnly(t)
	if !hasTime && r.timeShift && IsEasternShiftCandidate(title.OriginCountries, r.viewerRegion) {
		day = day.AddDate(0, 0, 1)
	}
	return day.AddDate(0, 0, title.DateOffsetDays)
}

// pickEpisodeRecord walks the precedence order and returns the first record
// with a usable date. Within a provider, a timestamped record beats a bare
// one.
func pickEpisodeRecord(records []models.ProviderRecord) (models.ProviderRecord, bool) {
	for _, provider := range episodePrecedence {
		var best *models.ProviderRecord
		for i := range records {
			rec := &records[i]
			if rec.Provider != provider || rec.AirDate.IsZero() {
				continue
			}
			if best == nil || (rec.HasTime && !best.HasTime) {
				best = rec
			}
		}
		if best != nil {
			return *best, true
		}
	}
	return models.ProviderRecord{}, false
}

// dedupeByDateKind collapses records restating the same fact: a second
// provider reporting the same date and kind is not a second event.
func dedupeByDateKind(records []models.ProviderRecord) []models.ProviderRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0:0]
	for _, rec := range records {
		key := dateOnly(rec.AirDate).Format("2006-01-02") + "|" + string(rec.ReleaseKind)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

// displayPrecedence fixes which provider supplies display fields when the
// catalog is absent, so the chosen name does not depend on record order.
var displayPrecedence = []models.ProviderName{
	models.ProviderTMDB,
	models.ProviderTVDB,
	models.ProviderTrakt,
	models.ProviderReleases,
}

// displayRecord prefers the catalog's record for display fields since it
// carries names, overviews and art; falls back through the remaining
// providers in a fixed order.
func displayRecord(records []models.ProviderRecord) models.ProviderRecord {
	for _, provider := range displayPrecedence {
		for _, rec := range records {
			if rec.Provider != provider {
				continue
			}
			if rec.EpisodeName != "" || rec.ImageURL != "" || rec.Overview != "" {
				return rec
			}
		}
	}
	if len(records) > 0 {
		return records[0]
	}
	return models.ProviderRecord{}
}

func posterFor(title models.TrackedTitle, display models.ProviderRecord) string {
	if title.PosterURL != "" {
		return title.PosterURL
	}
	return display.ImageURL
}

func networksOf(records []models.ProviderRecord) []string {
	for _, rec := range records {
		if len(rec.Networks) > 0 {
			return rec.Networks
		}
	}
	return nil
}

func providerRank(p models.ProviderName, order []models.ProviderName) int {
	for i, name := range order {
		if name == p {
			return i
		}
	}
	return len(order)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
