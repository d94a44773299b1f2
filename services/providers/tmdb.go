package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"upnext/models"

	"golang.org/x/time/rate"
)

const tmdbImageBaseURL = "https://image.tmdb.org/t/p/w500"

// TMDB release type codes from /movie/{id}/release_dates.
var tmdbReleaseKinds = map[int]models.ReleaseKind{
	1: models.ReleasePremiere,
	2: models.ReleaseTheatrical, // theatrical (limited)
	3: models.ReleaseTheatrical,
	4: models.ReleaseDigital,
	5: models.ReleasePhysical,
}

// TMDBClient is a minimal TMDB v3 client covering the endpoints the
// schedule engine needs.
type TMDBClient struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewTMDBClient creates a TMDB client. TMDB allows ~50 req/s; we stay well
// under it.
func NewTMDBClient(apiKey string, httpc *http.Client) *TMDBClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &TMDBClient{
		apiKey:  apiKey,
		baseURL: "https://api.themoviedb.org/3",
		httpc:   httpc,
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}
}

// WithBaseURL overrides the API base URL, for tests.
func (c *TMDBClient) WithBaseURL(u string) *TMDBClient {
	c.baseURL = u
	return c
}

func (c *TMDBClient) get(ctx context.Context, path string, q url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("tmdb get %s failed: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

var errNotFound = fmt.Errorf("not found")

type tmdbSeries struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Overview string `json:"overview"`
	Poster   string `json:"poster_path"`
	Networks []struct {
		Name string `json:"name"`
	} `json:"networks"`
	Seasons []struct {
		SeasonNumber int    `json:"season_number"`
		AirDate      string `json:"air_date"`
		EpisodeCount int    `json:"episode_count"`
	} `json:"seasons"`
}

type tmdbSeason struct {
	SeasonNumber int `json:"season_number"`
	Episodes     []struct {
		EpisodeNumber int    `json:"episode_number"`
		SeasonNumber  int    `json:"season_number"`
		Name          string `json:"name"`
		Overview      string `json:"overview"`
		AirDate       string `json:"air_date"`
		StillPath     string `json:"still_path"`
	} `json:"episodes"`
}

type tmdbMovie struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Overview    string `json:"overview"`
	Poster      string `json:"poster_path"`
	ReleaseDate string `json:"release_date"`
}

type tmdbReleaseDates struct {
	Results []struct {
		CountryCode  string `json:"iso_3166_1"`
		ReleaseDates []struct {
			Type        int    `json:"type"`
			ReleaseDate string `json:"release_date"`
		} `json:"release_dates"`
	} `json:"results"`
}

// CatalogAdapter serves the season/episode roster, nominal air dates and
// display metadata for series, and the primary release date for movies.
type CatalogAdapter struct {
	client *TMDBClient
}

// NewCatalogAdapter wraps a TMDB client as the catalog provider.
func NewCatalogAdapter(client *TMDBClient) *CatalogAdapter {
	return &CatalogAdapter{client: client}
}

func (a *CatalogAdapter) Name() models.ProviderName {
	return models.ProviderTMDB
}

// ListSeasons enumerates a series' seasons from the show detail, which is a
// single cheap request.
func (a *CatalogAdapter) ListSeasons(ctx context.Context, title models.TrackedTitle) ([]models.SeasonInfo, error) {
	var series tmdbSeries
	if err := a.client.get(ctx, fmt.Sprintf("/tv/%d", title.ID), nil, &series); err != nil {
		return nil, unavailable("tmdb", err)
	}
	seasons := make([]models.SeasonInfo, 0, len(series.Seasons))
	for _, s := range series.Seasons {
		info := models.SeasonInfo{Number: s.SeasonNumber, EpisodeCount: s.EpisodeCount}
		if t, _, err := parseDate(s.AirDate); err == nil {
			info.AirDate = t
		}
		seasons = append(seasons, info)
	}
	return seasons, nil
}

func (a *CatalogAdapter) Fetch(ctx context.Context, title models.TrackedTitle, seasons []int) ([]models.ProviderRecord, error) {
	if title.Kind == models.MediaMovie {
		return a.fetchMovie(ctx, title)
	}
	return a.fetchSeries(ctx, title, seasons)
}

func (a *CatalogAdapter) fetchMovie(ctx context.Context, title models.TrackedTitle) ([]models.ProviderRecord, error) {
	var movie tmdbMovie
	if err := a.client.get(ctx, fmt.Sprintf("/movie/%d", title.ID), nil, &movie); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, unavailable("tmdb", err)
	}
	t, _, err := parseDate(movie.ReleaseDate)
	if err != nil {
		return nil, nil
	}
	return []models.ProviderRecord{{
		Provider:    models.ProviderTMDB,
		TitleID:     title.ID,
		AirDate:     t,
		ReleaseKind: models.ReleaseTheatrical,
		Overview:    movie.Overview,
		ImageURL:    imageURL(movie.Poster),
	}}, nil
}

func (a *CatalogAdapter) fetchSeries(ctx context.Context, title models.TrackedTitle, seasons []int) ([]models.ProviderRecord, error) {
	var series tmdbSeries
	if err := a.client.get(ctx, fmt.Sprintf("/tv/%d", title.ID), nil, &series); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, unavailable("tmdb", err)
	}

	networks := make([]string, 0, len(series.Networks))
	for _, n := range series.Networks {
		networks = append(networks, n.Name)
	}

	wanted := seasons
	if wanted == nil {
		for _, s := range series.Seasons {
			wanted = append(wanted, s.SeasonNumber)
		}
	}

	var records []models.ProviderRecord
	for _, number := range wanted {
		var season tmdbSeason
		err := a.client.get(ctx, fmt.Sprintf("/tv/%d/season/%d", title.ID, number), nil, &season)
		if err == errNotFound {
			continue
		}
		if err != nil {
			return nil, unavailable("tmdb", err)
		}
		for _, ep := range season.Episodes {
			t, _, err := parseDate(ep.AirDate)
			if err != nil {
				continue
			}
			records = append(records, models.ProviderRecord{
				Provider:      models.ProviderTMDB,
				TitleID:       title.ID,
				SeasonNumber:  ep.SeasonNumber,
				EpisodeNumber: ep.EpisodeNumber,
				AirDate:       t,
				IsSpecial:     ep.SeasonNumber == 0,
				EpisodeName:   ep.Name,
				Overview:      ep.Overview,
				ImageURL:      imageURL(coalesce(ep.StillPath, series.Poster)),
				Networks:      networks,
			})
		}
	}
	return records, nil
}

// RegionalReleaseAdapter serves per-country movie release dates by kind.
type RegionalReleaseAdapter struct {
	client *TMDBClient
}

// NewRegionalReleaseAdapter wraps a TMDB client as the regional-release
// provider.
func NewRegionalReleaseAdapter(client *TMDBClient) *RegionalReleaseAdapter {
	return &RegionalReleaseAdapter{client: client}
}

func (a *RegionalReleaseAdapter) Name() models.ProviderName {
	return models.ProviderReleases
}

func (a *RegionalReleaseAdapter) Fetch(ctx context.Context, title models.TrackedTitle, _ []int) ([]models.ProviderRecord, error) {
	if title.Kind != models.MediaMovie {
		return nil, nil
	}
	var releases tmdbReleaseDates
	err := a.client.get(ctx, fmt.Sprintf("/movie/%d/release_dates", title.ID), nil, &releases)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("tmdb-releases", err)
	}

	var records []models.ProviderRecord
	for _, country := range releases.Results {
		for _, rel := range country.ReleaseDates {
			kind, ok := tmdbReleaseKinds[rel.Type]
			if !ok {
				continue
			}
			t, _, err := parseDate(rel.ReleaseDate)
			if err != nil {
				continue
			}
			// TMDB release timestamps are date placeholders at midnight,
			// not real instants.
			records = append(records, models.ProviderRecord{
				Provider:    models.ProviderReleases,
				TitleID:     title.ID,
				AirDate:     t,
				ReleaseKind: kind,
				Country:     country.CountryCode,
			})
		}
	}
	return records, nil
}

func imageURL(path string) string {
	if path == "" {
		return ""
	}
	return tmdbImageBaseURL + path
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
