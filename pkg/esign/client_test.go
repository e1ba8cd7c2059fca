package esign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-hq/applyflow/internal/resilience"
)

func TestCreateSigningRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/signature-requests", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req SigningRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"tmpl-lease"}, req.TemplateIDs)
		assert.Equal(t, "123 Main St", req.Fields["property_address"])
		require.Len(t, req.Recipients, 1)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"request_id": "req-42",
			"status": "sent",
			"signers": [
				{"email": "ada@example.com", "embedded_signing_url": "https://sign.example.com/s/abc"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.CreateSigningRequest(context.Background(), SigningRequest{
		TemplateIDs: []string{"tmpl-lease"},
		Fields:      map[string]string{"property_address": "123 Main St"},
		Recipients:  []Recipient{{Name: "Ada Tenant", Email: "ada@example.com"}},
		Embedded:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.Equal(t, "https://sign.example.com/s/abc", resp.URLFor("ada@example.com"))
	assert.Empty(t, resp.URLFor("nobody@example.com"))
}

func TestCreateSigningRequest_Validation(t *testing.T) {
	client := NewClient("test-key")

	_, err := client.CreateSigningRequest(context.Background(), SigningRequest{
		Recipients: []Recipient{{Email: "ada@example.com"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template id")

	_, err = client.CreateSigningRequest(context.Background(), SigningRequest{
		TemplateIDs: []string{"tmpl-lease"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient")
}

func TestCreateSigningRequest_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.CreateSigningRequest(context.Background(), SigningRequest{
		TemplateIDs: []string{"tmpl-lease"},
		Recipients:  []Recipient{{Email: "ada@example.com"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestCreateSigningRequest_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.CreateSigningRequest(context.Background(), SigningRequest{
		TemplateIDs: []string{"tmpl-lease"},
		Recipients:  []Recipient{{Email: "ada@example.com"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestCreateSigningRequest_BreakerFailsFastAfterOutage(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error": "upstream down"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL),
		WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: 2,
			Cooldown:         time.Hour,
		})))
	req := SigningRequest{
		TemplateIDs: []string{"tmpl-lease"},
		Recipients:  []Recipient{{Email: "ada@example.com"}},
	}

	for range 2 {
		_, err := client.CreateSigningRequest(context.Background(), req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 502")
	}

	// The open breaker rejects the next call without a request.
	_, err := client.CreateSigningRequest(context.Background(), req)
	require.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, 2, hits)
}
