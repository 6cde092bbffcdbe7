package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"jobpilot/automation-service/internal/model"
)

const (
	joobleName    = "jooble"
	joobleBaseURL = "https://jooble.org/api/"
)

// Jooble fetches job offers from the Jooble API. The API key travels in the
// URL path and the query in a JSON POST body.
type Jooble struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewJooble constructs an adapter with a shared HTTP client.
func NewJooble(apiKey string) *Jooble {
	return &Jooble{
		apiKey:  apiKey,
		baseURL: joobleBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// Name implements Source.
func (j *Jooble) Name() string { return joobleName }

type joobleRequest struct {
	Keywords string `json:"keywords"`
	Location string `json:"location,omitempty"`
	Page     string `json:"page"`
}

type joobleResponse struct {
	Jobs []joobleJob `json:"jobs"`
}

type joobleJob struct {
	ID       json.Number `json:"id"`
	Title    string      `json:"title"`
	Company  string      `json:"company"`
	Location string      `json:"location"`
	Snippet  string      `json:"snippet"`
	Salary   string      `json:"salary"`
	Link     string      `json:"link"`
	Updated  string      `json:"updated"`
}

// Search implements Source. Jooble has no documented paging guarantees we
// rely on, so one page per sweep is fetched.
func (j *Jooble) Search(ctx context.Context, criteria model.SearchCriteria) ([]model.RawPosting, error) {
	if j.apiKey == "" {
		log.Println("[jooble] JOOBLE_API_KEY not set — skipping search")
		return nil, nil
	}

	payload, err := json.Marshal(joobleRequest{
		Keywords: criteria.Keywords,
		Location: criteria.Location,
		Page:     "1",
	})
	if err != nil {
		return nil, &TransientError{Source: joobleName, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+j.apiKey, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransientError{Source: joobleName, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, &TransientError{Source: joobleName, Err: fmt.Errorf("http POST: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Source: joobleName, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &CredentialsError{Source: joobleName,
			Err: fmt.Errorf("jooble returned %d: %s", resp.StatusCode, string(body))}
	case resp.StatusCode != http.StatusOK:
		return nil, &TransientError{Source: joobleName,
			Err: fmt.Errorf("jooble returned %d: %s", resp.StatusCode, string(body))}
	}

	var apiResp joobleResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &TransientError{Source: joobleName, Err: fmt.Errorf("json unmarshal: %w", err)}
	}

	limit := criteria.Limit
	if limit <= 0 {
		limit = len(apiResp.Jobs)
	}

	results := make([]model.RawPosting, 0, len(apiResp.Jobs))
	for _, job := range apiResp.Jobs {
		if len(results) >= limit {
			break
		}
		results = append(results, model.RawPosting{
			ExternalID:  "jooble_" + job.ID.String(),
			Title:       job.Title,
			Company:     job.Company,
			Location:    job.Location,
			Description: job.Snippet,
			SourceURL:   job.Link,
			PostedAt:    parseISOTime(job.Updated),
		})
	}
	return results, nil
}
