package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"upnext/models"
	"upnext/services/schedule"
)

const traktAPIVersion = "2"

// CommunityAdapter serves crowd-reported air timestamps from Trakt. It
// needs a per-run user access token; the aggregator binds one via
// WithToken and skips the adapter entirely when none exists.
type CommunityAdapter struct {
	client *TraktClient
	token  string
}

// NewCommunityAdapter wraps a Trakt client as the community-tracking
// provider.
func NewCommunityAdapter(client *TraktClient) *CommunityAdapter {
	return &CommunityAdapter{client: client}
}

func (a *CommunityAdapter) Name() models.ProviderName {
	return models.ProviderTrakt
}

// WithToken returns a copy of the adapter bound to a user access token.
func (a *CommunityAdapter) WithToken(token string) schedule.ProviderAdapter {
	return &CommunityAdapter{client: a.client, token: token}
}

func (a *CommunityAdapter) Fetch(ctx context.Context, title models.TrackedTitle, seasons []int) ([]models.ProviderRecord, error) {
	if title.Kind != models.MediaSeries || a.token == "" {
		return nil, nil
	}
	ref := traktReference(title)
	if ref == "" {
		return nil, nil
	}

	traktSeasons, err := a.client.showSeasons(ctx, ref, a.token)
	if err != nil {
		return nil, unavailable("trakt", err)
	}

	want := make(map[int]bool, len(seasons))
	for _, n := range seasons {
		want[n] = true
	}

	var records []models.ProviderRecord
	for _, season := range traktSeasons {
		if len(want) > 0 && !want[season.Number] {
			continue
		}
		for _, ep := range season.Episodes {
			if ep.FirstAired == nil {
				continue
			}
			records = append(records, models.ProviderRecord{
				Provider:      models.ProviderTrakt,
				TitleID:       title.ID,
				SeasonNumber:  season.Number,
				EpisodeNumber: ep.Number,
				AirDate:       ep.FirstAired.UTC(),
				HasTime:       true,
				IsSpecial:     season.Number == 0,
				EpisodeName:   ep.Title,
			})
		}
	}
	return records, nil
}

// traktReference picks the id Trakt endpoints accept: a Trakt id or slug,
// falling back to the IMDB id.
func traktReference(title models.TrackedTitle) string {
	if id := title.ExternalIDs["trakt"]; id != "" {
		return id
	}
	return title.IMDBID
}

// TraktClient is a minimal Trakt API client for schedule data.
type TraktClient struct {
	clientID string
	baseURL  string
	httpc    *http.Client
}

// NewTraktClient creates a Trakt API client.
func NewTraktClient(clientID string, httpc *http.Client) *TraktClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &TraktClient{
		clientID: clientID,
		baseURL:  "https://api.trakt.tv",
		httpc:    httpc,
	}
}

// WithBaseURL overrides the API base URL, for tests.
func (c *TraktClient) WithBaseURL(u string) *TraktClient {
	c.baseURL = u
	return c
}

// setHeaders adds the required Trakt API headers to a request.
func (c *TraktClient) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", traktAPIVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

type traktSeason struct {
	Number   int `json:"number"`
	Episodes []struct {
		Number     int        `json:"number"`
		Title      string     `json:"title"`
		FirstAired *time.Time `json:"first_aired"`
	} `json:"episodes"`
}

// showSeasons fetches all seasons with embedded episodes and their
// first_aired timestamps.
func (c *TraktClient) showSeasons(ctx context.Context, ref, accessToken string) ([]traktSeason, error) {
	endpoint := fmt.Sprintf("%s/shows/%s/seasons?extended=episodes", c.baseURL, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trakt api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trakt seasons failed: %s", resp.Status)
	}

	var seasons []traktSeason
	if err := json.NewDecoder(resp.Body).Decode(&seasons); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return seasons, nil
}
