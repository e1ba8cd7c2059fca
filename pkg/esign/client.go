// Package esign creates signature requests from document templates and
// returns embeddable signing URLs for each recipient.
package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veranda-hq/applyflow/internal/resilience"
)

const defaultBaseURL = "https://api.esign.example.com"

// Client creates signing requests.
type Client interface {
	CreateSigningRequest(ctx context.Context, req SigningRequest) (*SigningResponse, error)
}

// Recipient is one signer on a request.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SigningRequest is the request body for POST /v1/signature-requests.
type SigningRequest struct {
	TemplateIDs []string          `json:"template_ids"`
	Fields      map[string]string `json:"fields,omitempty"`
	Recipients  []Recipient       `json:"recipients"`
	Embedded    bool              `json:"embedded"`
}

// SigningResponse is the created request with per-signer URLs.
type SigningResponse struct {
	RequestID string   `json:"request_id"`
	Status    string   `json:"status"`
	Signers   []Signer `json:"signers"`
}

// Signer is one recipient's slot on a created request.
type Signer struct {
	Email      string `json:"email"`
	SigningURL string `json:"embedded_signing_url"`
}

// URLFor returns the signing URL for the given recipient email, or "".
func (r *SigningResponse) URLFor(email string) string {
	for _, s := range r.Signers {
		if s.Email == email {
			return s.SigningURL
		}
	}
	return ""
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	breaker *resilience.Breaker
}

// NewClient creates an e-signature API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig()),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateSigningRequest(ctx context.Context, req SigningRequest) (*SigningResponse, error) {
	if len(req.TemplateIDs) == 0 {
		return nil, eris.New("esign: at least one template id required")
	}
	if len(req.Recipients) == 0 {
		return nil, eris.New("esign: at least one recipient required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "esign: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/signature-requests", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "esign: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	// A run of throttles or dropped connections opens the breaker and
	// later calls fail fast with ErrBreakerOpen.
	var result SigningResponse
	err = c.breaker.Do(func() error {
		resp, err := c.http.Do(httpReq)
		if err != nil {
			return eris.Wrap(err, "esign: send request")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "esign: read response")
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			statusErr := eris.Errorf("esign: unexpected status %d: %s", resp.StatusCode, string(respBody))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return statusErr
		}

		if err := json.Unmarshal(respBody, &result); err != nil {
			return eris.Wrap(err, "esign: unmarshal response")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}
