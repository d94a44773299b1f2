package models

import (
	"fmt"
	"time"
)

// MediaKind distinguishes episodic series from one-shot movie titles.
type MediaKind string

const (
	MediaSeries MediaKind = "series"
	MediaMovie  MediaKind = "movie"
)

// ProviderName identifies a schedule data source.
type ProviderName string

const (
	ProviderTMDB     ProviderName = "tmdb"          // catalog: roster, nominal dates, display metadata
	ProviderTVDB     ProviderName = "tvdb"          // per-episode air dates, keyed by TVDB cross-reference id
	ProviderTrakt    ProviderName = "trakt"         // community-reported air timestamps
	ProviderReleases ProviderName = "tmdb-releases" // per-country movie release dates
)

// ReleaseKind is the category of a movie release event.
type ReleaseKind string

const (
	ReleaseTheatrical ReleaseKind = "theatrical"
	ReleasePremiere   ReleaseKind = "premiere"
	ReleaseDigital    ReleaseKind = "digital"
	ReleasePhysical   ReleaseKind = "physical"
)

// TrackedTitle is a show or movie the user follows. Owned by the
// watchlist store; read-only here.
type TrackedTitle struct {
	ID              int64             `json:"id"` // TMDB id, the canonical catalog reference
	Kind            MediaKind         `json:"kind"`
	Name            string            `json:"name"`
	Year            int               `json:"year,omitempty"`
	OriginCountries []string          `json:"originCountries,omitempty"` // ISO 3166-1 alpha-2
	TVDBID          int64             `json:"tvdbId,omitempty"`
	IMDBID          string            `json:"imdbId,omitempty"`
	ExternalIDs     map[string]string `json:"externalIds,omitempty"`
	PosterURL       string            `json:"posterUrl,omitempty"`      // user override, wins over provider art
	DateOffsetDays  int               `json:"dateOffsetDays,omitempty"` // per-title user correction, whole days
}

// ProviderRecord is one raw schedule observation from a single provider,
// normalized at the adapter boundary. Ephemeral; discarded after resolution.
type ProviderRecord struct {
	Provider      ProviderName
	TitleID       int64
	SeasonNumber  int
	EpisodeNumber int
	AirDate       time.Time   // UTC; date-only values are midnight UTC
	HasTime       bool        // true when the provider supplied a real time-of-day
	ReleaseKind   ReleaseKind // movies only
	Country       string      // movies only, ISO 3166-1 alpha-2
	IsSpecial     bool        // season 0

	// Display passthrough, filled by the catalog adapter.
	EpisodeName string
	Overview    string
	ImageURL    string
	Networks    []string
}

// SeasonInfo summarizes one season from the catalog roster, used to pick
// which seasons are worth re-fetching.
type SeasonInfo struct {
	Number       int
	AirDate      time.Time // first air date of the season, zero if unaired
	EpisodeCount int
}

// ResolvedScheduleEntry is the canonical output unit: one episode airing
// or one movie release event, dated in the viewer's perceived local day.
type ResolvedScheduleEntry struct {
	TitleID       int64        `json:"titleId"`
	MediaKind     MediaKind    `json:"mediaKind"`
	SeasonNumber  int          `json:"seasonNumber,omitempty"`
	EpisodeNumber int          `json:"episodeNumber,omitempty"`
	AirDate       string       `json:"airDate"` // YYYY-MM-DD, viewer-local day
	Provider      ProviderName `json:"provider"`
	ReleaseKind   ReleaseKind  `json:"releaseKind,omitempty"` // movies: theatrical | digital
	Title         string       `json:"title"`
	EpisodeTitle  string       `json:"episodeTitle,omitempty"`
	Overview      string       `json:"overview,omitempty"`
	PosterURL     string       `json:"posterUrl,omitempty"`
	Year          int          `json:"year,omitempty"`
}

// Key uniquely identifies the schedule slot an entry occupies. At most one
// entry per key is ever emitted.
func (e ResolvedScheduleEntry) Key() string {
	if e.MediaKind == MediaMovie {
		return fmt.Sprintf("movie:%d:%s", e.TitleID, e.ReleaseKind)
	}
	return fmt.Sprintf("series:%d:s%02de%02d", e.TitleID, e.SeasonNumber, e.EpisodeNumber)
}

// CalendarWindow is an inclusive date range supplied by the caller.
type CalendarWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether day falls inside the window, bounds included.
// Only the calendar date is compared; time-of-day is ignored.
func (w CalendarWindow) Contains(day time.Time) bool {
	d := day.Format("2006-01-02")
	return d >= w.Start.Format("2006-01-02") && d <= w.End.Format("2006-01-02")
}

// ScheduleResult is the best-effort outcome of a schedule resolution run.
type ScheduleResult struct {
	Entries         []ResolvedScheduleEntry `json:"entries"`
	PartialFailures []ProviderName          `json:"partialFailures,omitempty"` // providers that produced no data due to errors
	TitleErrors     map[int64]string        `json:"titleErrors,omitempty"`     // titles skipped entirely, by id
}
