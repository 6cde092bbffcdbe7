package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jobpilot/automation-service/internal/model"
)

const (
	adzunaName     = "adzuna"
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per search
	httpTimeout    = 15 * time.Second
)

// Adzuna fetches job offers from the Adzuna public API.
// If AppID or AppKey is empty, Search returns (nil, nil) gracefully — the
// sweep simply skips this board and logs a line.
type Adzuna struct {
	appID   string
	appKey  string
	country string // "us", "gb", "fr", …
	baseURL string
	client  *http.Client
}

// NewAdzuna constructs an adapter with a shared HTTP client.
func NewAdzuna(appID, appKey, country string) *Adzuna {
	return &Adzuna{
		appID:   appID,
		appKey:  appKey,
		country: country,
		baseURL: adzunaBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// Name implements Source.
func (a *Adzuna) Name() string { return adzunaName }

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Company     adzunaCompany  `json:"company"`
	Location    adzunaLocation `json:"location"`
	SalaryMin   float64        `json:"salary_min"`
	SalaryMax   float64        `json:"salary_max"`
	RedirectURL string         `json:"redirect_url"`
	Created     string         `json:"created"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// Search implements Source, iterating through pages until the criteria
// limit, an empty page, or adzunaMaxPages is reached.
func (a *Adzuna) Search(ctx context.Context, criteria model.SearchCriteria) ([]model.RawPosting, error) {
	if a.appID == "" || a.appKey == "" {
		log.Println("[adzuna] ADZUNA_APP_ID / ADZUNA_APP_KEY not set — skipping search")
		return nil, nil
	}

	limit := criteria.Limit
	if limit <= 0 || limit > adzunaPageSize*adzunaMaxPages {
		limit = adzunaPageSize * adzunaMaxPages
	}

	var results []model.RawPosting
	for page := 1; page <= adzunaMaxPages && len(results) < limit; page++ {
		batch, err := a.searchPage(ctx, criteria, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break // no more results
		}
		results = append(results, batch...)
		if len(batch) < adzunaPageSize {
			break // last page
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (a *Adzuna) searchPage(ctx context.Context, criteria model.SearchCriteria, page int) ([]model.RawPosting, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", a.baseURL, a.country, page)

	params := url.Values{}
	params.Set("app_id", a.appID)
	params.Set("app_key", a.appKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", criteria.Keywords)
	params.Set("sort_by", "date")
	if criteria.Location != "" {
		params.Set("where", criteria.Location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &TransientError{Source: adzunaName, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &TransientError{Source: adzunaName, Err: fmt.Errorf("http GET: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Source: adzunaName, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &CredentialsError{Source: adzunaName,
			Err: fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, string(body))}
	case resp.StatusCode != http.StatusOK:
		return nil, &TransientError{Source: adzunaName,
			Err: fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, string(body))}
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &TransientError{Source: adzunaName, Err: fmt.Errorf("json unmarshal: %w", err)}
	}

	results := make([]model.RawPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		results = append(results, model.RawPosting{
			ExternalID:  "adzuna_" + r.ID,
			Title:       r.Title,
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Description: r.Description,
			SalaryMin:   r.SalaryMin,
			SalaryMax:   r.SalaryMax,
			SourceURL:   r.RedirectURL,
			PostedAt:    parseISOTime(r.Created),
		})
	}
	return results, nil
}

// parseISOTime parses provider timestamps, falling back to now so a missing
// date never makes a posting look stale.
func parseISOTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
