package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"upnext/models"
)

// AirdatesAdapter serves per-episode air dates from TVDB v4, keyed by the
// title's TVDB cross-reference id. Titles without one simply contribute no
// records.
type AirdatesAdapter struct {
	client *TVDBClient
}

// NewAirdatesAdapter wraps a TVDB client as the episode-airdates provider.
func NewAirdatesAdapter(client *TVDBClient) *AirdatesAdapter {
	return &AirdatesAdapter{client: client}
}

func (a *AirdatesAdapter) Name() models.ProviderName {
	return models.ProviderTVDB
}

func (a *AirdatesAdapter) Fetch(ctx context.Context, title models.TrackedTitle, seasons []int) ([]models.ProviderRecord, error) {
	if title.Kind != models.MediaSeries || title.TVDBID <= 0 {
		return nil, nil
	}

	airsTime, err := a.client.seriesAirsTime(ctx, title.TVDBID)
	if err != nil {
		// Air time is an enrichment; episodes are still usable without it.
		log.Printf("[tvdb] airs time unavailable series=%d: %v", title.TVDBID, err)
		airsTime = ""
	}

	episodes, err := a.client.seriesEpisodes(ctx, title.TVDBID)
	if err != nil {
		return nil, unavailable("tvdb", err)
	}

	want := make(map[int]bool, len(seasons))
	for _, n := range seasons {
		want[n] = true
	}

	var records []models.ProviderRecord
	for _, ep := range episodes {
		if len(want) > 0 && !want[ep.SeasonNumber] {
			continue
		}
		raw := strings.TrimSpace(ep.Aired)
		if raw == "" {
			continue
		}
		if airsTime != "" {
			raw = raw + " " + airsTime
		}
		t, hasTime, err := parseDate(raw)
		if err != nil {
			continue
		}
		records = append(records, models.ProviderRecord{
			Provider:      models.ProviderTVDB,
			TitleID:       title.ID,
			SeasonNumber:  ep.SeasonNumber,
			EpisodeNumber: ep.Number,
			AirDate:       t,
			HasTime:       hasTime,
			IsSpecial:     ep.SeasonNumber == 0,
			EpisodeName:   ep.Name,
		})
	}
	return records, nil
}

// TVDBClient is a minimal TVDB v4 client (token auth plus the episode
// endpoints the engine needs).
type TVDBClient struct {
	apiKey  string
	baseURL string
	httpc   *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewTVDBClient creates a TVDB v4 client.
func NewTVDBClient(apiKey string, httpc *http.Client) *TVDBClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &TVDBClient{
		apiKey:  apiKey,
		baseURL: "https://api4.thetvdb.com/v4",
		httpc:   httpc,
	}
}

// WithBaseURL overrides the API base URL, for tests.
func (c *TVDBClient) WithBaseURL(u string) *TVDBClient {
	c.baseURL = u
	return c
}

func (c *TVDBClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-1*time.Minute)) {
		return c.token, nil
	}
	buf, _ := json.Marshal(map[string]string{"apikey": c.apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("tvdb login failed: %s", resp.Status)
	}
	var data struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	c.token = data.Data.Token
	c.tokenExpiry = time.Now().Add(23 * time.Hour)
	return c.token, nil
}

func (c *TVDBClient) get(ctx context.Context, path string, q url.Values, v any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("tvdb get %s failed: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

type tvdbEpisode struct {
	Name         string `json:"name"`
	Aired        string `json:"aired"` // YYYY-MM-DD
	SeasonNumber int    `json:"seasonNumber"`
	Number       int    `json:"number"`
}

// seriesAirsTime fetches the series' nominal time-of-day ("21:00") from the
// extended record. Empty when TVDB doesn't know it.
func (c *TVDBClient) seriesAirsTime(ctx context.Context, seriesID int64) (string, error) {
	var resp struct {
		Data struct {
			AirsTime string `json:"airsTime"`
		} `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/series/%d/extended", seriesID), nil, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Data.AirsTime), nil
}

// seriesEpisodes pages through the official season order for a series.
func (c *TVDBClient) seriesEpisodes(ctx context.Context, seriesID int64) ([]tvdbEpisode, error) {
	endpoint := fmt.Sprintf("/series/%d/episodes/official", seriesID)
	page := 0
	results := make([]tvdbEpisode, 0, 50)
	for {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		var resp struct {
			Data struct {
				Episodes []tvdbEpisode `json:"episodes"`
			} `json:"data"`
			Links struct {
				Next *string `json:"next"`
			} `json:"links"`
		}
		if err := c.get(ctx, endpoint, params, &resp); err != nil {
			return nil, err
		}
		results = append(results, resp.Data.Episodes...)
		if resp.Links.Next == nil || *resp.Links.Next == "" || len(resp.Data.Episodes) == 0 {
			return results, nil
		}
		page++
	}
}
