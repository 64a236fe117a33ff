package openfda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

const (
	serviceName    = "openfda"
	defaultBaseURL = "https://api.fda.gov"
	labelPath      = "/drug/label.json"
)

// Client fetches drug labels from the openFDA label endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

var _ providers.LabelSource = (*Client)(nil)

// NewClient creates a new openFDA client
func NewClient(cfg *config.OpenFDAConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type labelResponse struct {
	Results []json.RawMessage `json:"results"`
}

// FetchLabel returns the most recent label for a product NDC.
func (c *Client) FetchLabel(ctx context.Context, externalID string) (*entities.RawLabel, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperrors.NewValidationError("external id is required")
	}

	query := url.Values{}
	query.Set("search", fmt.Sprintf(`openfda.product_ndc:"%s"`, externalID))
	query.Set("limit", "1")
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+labelPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build openfda request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperrors.NewTransientError("openfda request failed", err)
	}
	defer resp.Body.Close()

	log.Ctx(ctx).Debug().
		Str("component", serviceName).
		Str("external_id", externalID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("fetched label")

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no label found for %s", externalID))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.FromHTTPStatus(serviceName, resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(snippet))))
	}

	var payload labelResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.NewTransientError("failed to decode openfda response", err)
	}
	if len(payload.Results) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no label found for %s", externalID))
	}

	return &entities.RawLabel{
		ExternalID: externalID,
		Body:       payload.Results[0],
		FetchedAt:  c.now().UTC(),
	}, nil
}
