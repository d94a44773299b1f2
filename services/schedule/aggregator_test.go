package schedule

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"upnext/models"
)

// --- Mock adapters ---

type mockAdapter struct {
	name    models.ProviderName
	records map[int64][]models.ProviderRecord
	seasons map[int64][]models.SeasonInfo
	err     error
	calls   atomic.Int32
	token   string
}

func (m *mockAdapter) Name() models.ProviderName {
	return m.name
}

func (m *mockAdapter) Fetch(_ context.Context, title models.TrackedTitle, seasons []int) ([]models.ProviderRecord, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	recs := m.records[title.ID]
	if len(seasons) == 0 {
		return recs, nil
	}
	want := make(map[int]bool, len(seasons))
	for _, n := range seasons {
		want[n] = true
	}
	var out []models.ProviderRecord
	for _, rec := range recs {
		if want[rec.SeasonNumber] || title.Kind == models.MediaMovie {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockAdapter) ListSeasons(_ context.Context, title models.TrackedTitle) ([]models.SeasonInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.seasons[title.ID], nil
}

func (m *mockAdapter) WithToken(token string) ProviderAdapter {
	m.token = token
	return m
}

// --- Helpers ---

func testWindow() models.CalendarWindow {
	return models.CalendarWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func seriesTitle(id int64) models.TrackedTitle {
	return models.TrackedTitle{
		ID:              id,
		Kind:            models.MediaSeries,
		Name:            fmt.Sprintf("Show %d", id),
		OriginCountries: []string{"US"},
		TVDBID:          id * 10,
	}
}

func epRecord(provider models.ProviderName, titleID int64, season, episode int, date string) models.ProviderRecord {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return models.ProviderRecord{
		Provider:      provider,
		TitleID:       titleID,
		SeasonNumber:  season,
		EpisodeNumber: episode,
		AirDate:       t,
		IsSpecial:     season == 0,
	}
}

func defaultAdapters() (*mockAdapter, *mockAdapter, *mockAdapter, *mockAdapter) {
	catalog := &mockAdapter{name: models.ProviderTMDB, records: map[int64][]models.ProviderRecord{}, seasons: map[int64][]models.SeasonInfo{}}
	airdates := &mockAdapter{name: models.ProviderTVDB, records: map[int64][]models.ProviderRecord{}}
	community := &mockAdapter{name: models.ProviderTrakt, records: map[int64][]models.ProviderRecord{}}
	regional := &mockAdapter{name: models.ProviderReleases, records: map[int64][]models.ProviderRecord{}}
	return catalog, airdates, community, regional
}

// --- Tests ---

func TestResolveSchedule_SeriesFromCatalog(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{
		epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-01"),
		epRecord(models.ProviderTMDB, 1, 1, 2, "2024-03-08"),
	}

	svc := New(catalog, airdates, community, regional)
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{seriesTitle(1)}, testWindow(), models.Settings{ViewerRegionOverride: "US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
	if result.Entries[0].AirDate != "2024-03-01" || result.Entries[1].AirDate != "2024-03-08" {
		t.Errorf("entries not sorted by date: %+v", result.Entries)
	}
	if len(result.PartialFailures) != 0 {
		t.Errorf("expected no partial failures, got %v", result.PartialFailures)
	}
}

func TestResolveSchedule_ProviderFailureDegrades(t *testing.T) {
	// Community adapter is down; the TVDB date still resolves the episode
	// and the failure is reported as a soft warning.
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-01")}
	airdates.records[1] = []models.ProviderRecord{epRecord(models.ProviderTVDB, 1, 1, 1, "2024-03-02")}
	community.err = fmt.Errorf("%w: trakt: connection refused", ErrProviderUnavailable)

	svc := New(catalog, airdates, community, regional)
	settings := models.Settings{ViewerRegionOverride: "US", TraktAccessToken: "tok"}
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{seriesTitle(1)}, testWindow(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(result.Entries))
	}
	if result.Entries[0].Provider != models.ProviderTVDB {
		t.Errorf("expected tvdb to win after trakt failure, got %s", result.Entries[0].Provider)
	}
	if len(result.PartialFailures) != 1 || result.PartialFailures[0] != models.ProviderTrakt {
		t.Errorf("expected partialFailures=[trakt], got %v", result.PartialFailures)
	}
}

func TestResolveSchedule_CommunitySkippedWithoutToken(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-01")}

	svc := New(catalog, airdates, community, regional)
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{seriesTitle(1)}, testWindow(), models.Settings{ViewerRegionOverride: "US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if community.calls.Load() != 0 {
		t.Errorf("community adapter must not be queried without a token, got %d calls", community.calls.Load())
	}
	if len(result.PartialFailures) != 0 {
		t.Errorf("a skipped adapter is not a failure: %v", result.PartialFailures)
	}
}

func TestResolveSchedule_TokenBound(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-01")}

	svc := New(catalog, airdates, community, regional)
	settings := models.Settings{ViewerRegionOverride: "US", TraktAccessToken: "secret"}
	if _, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{seriesTitle(1)}, testWindow(), settings); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if community.token != "secret" {
		t.Errorf("expected token bound to community adapter, got %q", community.token)
	}
}

func TestResolveSchedule_InvalidTitleSkipped(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-01")}

	bad := models.TrackedTitle{ID: 0, Kind: models.MediaSeries, Name: "Ghost Entry"}
	svc := New(catalog, airdates, community, regional)
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{bad, seriesTitle(1)}, testWindow(), models.Settings{ViewerRegionOverride: "US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("the valid title must still resolve, got %d entries", len(result.Entries))
	}
	if len(result.TitleErrors) != 1 {
		t.Fatalf("expected 1 title error, got %+v", result.TitleErrors)
	}
}

func TestResolveSchedule_SeasonsOfInterest(t *testing.T) {
	// Four seasons on the roster: only the two most recent plus specials
	// are fetched and resolved.
	catalog, airdates, community, regional := defaultAdapters()
	catalog.seasons[1] = []models.SeasonInfo{
		{Number: 0, AirDate: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Number: 1, AirDate: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Number: 2, AirDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Number: 3, AirDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	catalog.records[1] = []models.ProviderRecord{
		epRecord(models.ProviderTMDB, 1, 1, 1, "2024-02-01"),
		epRecord(models.ProviderTMDB, 1, 2, 1, "2024-03-01"),
		epRecord(models.ProviderTMDB, 1, 3, 1, "2024-04-01"),
		epRecord(models.ProviderTMDB, 1, 0, 1, "2024-05-01"),
	}

	svc := New(catalog, airdates, community, regional)
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{seriesTitle(1)}, testWindow(), models.Settings{ViewerRegionOverride: "US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var seasons []int
	for _, e := range result.Entries {
		seasons = append(seasons, e.SeasonNumber)
	}
	if !reflect.DeepEqual(seasons, []int{2, 3, 0}) {
		t.Errorf("expected seasons 2, 3 and specials in date order, got %v", seasons)
	}
}

func TestResolveSchedule_IgnoreSpecials(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{
		epRecord(models.ProviderTMDB, 1, 0, 1, "2024-03-01"),
		epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-02"),
	}

	svc := New(catalog, airdates, community, regional)
	settings := models.Settings{ViewerRegionOverride: "US", IgnoreSpecials: true}
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{seriesTitle(1)}, testWindow(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].SeasonNumber != 1 {
		t.Fatalf("expected only the regular episode, got %+v", result.Entries)
	}
}

func TestResolveSchedule_MovieTwoReleases(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	regional.records[900] = []models.ProviderRecord{
		{Provider: models.ProviderReleases, TitleID: 900, ReleaseKind: models.ReleaseTheatrical, Country: "US", AirDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{Provider: models.ProviderReleases, TitleID: 900, ReleaseKind: models.ReleaseDigital, Country: "US", AirDate: time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)},
	}

	movie := models.TrackedTitle{ID: 900, Kind: models.MediaMovie, Name: "Harbor Lights"}
	svc := New(catalog, airdates, community, regional)
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{movie}, testWindow(), models.Settings{ViewerRegionOverride: "US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected theatrical + digital entries, got %d", len(result.Entries))
	}
	if result.Entries[0].ReleaseKind != models.ReleaseTheatrical || result.Entries[0].AirDate != "2024-01-10" {
		t.Errorf("unexpected first entry: %+v", result.Entries[0])
	}
	if result.Entries[1].ReleaseKind != models.ReleaseDigital || result.Entries[1].AirDate != "2024-02-14" {
		t.Errorf("unexpected second entry: %+v", result.Entries[1])
	}
	if community.calls.Load() != 0 || airdates.calls.Load() != 0 {
		t.Error("series-only adapters must not be queried for movies")
	}
}

func TestResolveSchedule_HideTheatrical(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	regional.records[900] = []models.ProviderRecord{
		{Provider: models.ProviderReleases, TitleID: 900, ReleaseKind: models.ReleaseTheatrical, Country: "US", AirDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{Provider: models.ProviderReleases, TitleID: 900, ReleaseKind: models.ReleaseDigital, Country: "US", AirDate: time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)},
	}

	movie := models.TrackedTitle{ID: 900, Kind: models.MediaMovie, Name: "Harbor Lights"}
	svc := New(catalog, airdates, community, regional)
	settings := models.Settings{ViewerRegionOverride: "US", HideTheatrical: true}
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{movie}, testWindow(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].ReleaseKind != models.ReleaseDigital {
		t.Fatalf("expected only the digital entry, got %+v", result.Entries)
	}
}

func TestResolveSchedule_WindowApplied(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{
		epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-01"),
		epRecord(models.ProviderTMDB, 1, 1, 2, "2024-06-01"),
	}

	window := models.CalendarWindow{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	svc := New(catalog, airdates, community, regional)
	result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{seriesTitle(1)}, window, models.Settings{ViewerRegionOverride: "US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].AirDate != "2024-03-01" {
		t.Fatalf("expected only the March episode, got %+v", result.Entries)
	}
}

func TestResolveSchedule_Idempotent(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{
		epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-01"),
		epRecord(models.ProviderTMDB, 1, 1, 2, "2024-03-08"),
	}
	catalog.records[2] = []models.ProviderRecord{
		epRecord(models.ProviderTMDB, 2, 4, 1, "2024-03-05"),
	}
	airdates.records[1] = []models.ProviderRecord{
		epRecord(models.ProviderTVDB, 1, 1, 2, "2024-03-09"),
	}

	titles := []models.TrackedTitle{seriesTitle(1), seriesTitle(2)}
	svc := New(catalog, airdates, community, regional)
	settings := models.Settings{ViewerRegionOverride: "US"}

	first, err := svc.ResolveSchedule(context.Background(), titles, testWindow(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.ResolveSchedule(context.Background(), titles, testWindow(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first.Entries, second.Entries) {
		t.Errorf("identical inputs must yield identical entries:\nfirst:  %+v\nsecond: %+v", first.Entries, second.Entries)
	}
}

func TestResolveSchedule_StableDisplayWhenCatalogDown(t *testing.T) {
	// With the catalog down, both remaining providers carry an episode name;
	// the surfaced one must not depend on which goroutine finishes first.
	catalog, airdates, community, regional := defaultAdapters()
	catalog.err = fmt.Errorf("%w: tmdb: 502", ErrProviderUnavailable)
	tvdbRec := epRecord(models.ProviderTVDB, 1, 1, 1, "2024-03-01")
	tvdbRec.EpisodeName = "airdates name"
	traktRec := epRecord(models.ProviderTrakt, 1, 1, 1, "2024-03-01")
	traktRec.EpisodeName = "community name"
	airdates.records[1] = []models.ProviderRecord{tvdbRec}
	community.records[1] = []models.ProviderRecord{traktRec}

	svc := New(catalog, airdates, community, regional)
	settings := models.Settings{ViewerRegionOverride: "US", TraktAccessToken: "tok"}

	var prev []models.ResolvedScheduleEntry
	for i := 0; i < 10; i++ {
		result, err := svc.ResolveSchedule(context.Background(), []models.TrackedTitle{seriesTitle(1)}, testWindow(), settings)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(result.Entries))
		}
		if result.Entries[0].EpisodeTitle != "airdates name" {
			t.Fatalf("run %d: expected the tvdb name, got %q", i, result.Entries[0].EpisodeTitle)
		}
		if prev != nil && !reflect.DeepEqual(prev, result.Entries) {
			t.Fatalf("run %d differs from previous:\nprev: %+v\ngot:  %+v", i, prev, result.Entries)
		}
		prev = result.Entries
	}
}

func TestResolveSchedule_CancelledContext(t *testing.T) {
	catalog, airdates, community, regional := defaultAdapters()
	catalog.records[1] = []models.ProviderRecord{epRecord(models.ProviderTMDB, 1, 1, 1, "2024-03-01")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := New(catalog, airdates, community, regional)
	result, err := svc.ResolveSchedule(ctx, []models.TrackedTitle{seriesTitle(1)}, testWindow(), models.Settings{ViewerRegionOverride: "US"})
	if err != nil {
		t.Fatalf("cancellation is cooperative, not an error: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected no entries after pre-cancelled context, got %d", len(result.Entries))
	}
}
