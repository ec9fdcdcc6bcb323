package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorengine/creatorengine/internal/pkg/jobs"
)

func testClient(endpoint string) *Client {
	return &Client{
		EndpointURL:    endpoint,
		CallbackURL:    "https://app.example.com/api/v1/jobs/%s/callback",
		CallbackSecret: "shh",
		HTTPClient:     http.DefaultClient,
	}
}

func sampleRequest() jobs.TriggerRequest {
	return jobs.TriggerRequest{
		JobUUID:      "abc-123",
		UserID:       7,
		Kind:         "video",
		SourcePath:   "uploads/7/clip.mp4",
		VariantCount: 3,
		SettingsJSON: `{"speed_range":[0.98,1.02]}`,
	}
}

func TestTriggerAccepted(t *testing.T) {
	var received triggerPayload
	var secret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get("X-Callback-Secret")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"queued","call_id":"call-42"}`))
	}))
	defer server.Close()

	result, err := testClient(server.URL).Trigger(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "call-42", result.Handle)

	assert.Equal(t, "shh", secret)
	assert.Equal(t, "abc-123", received.JobID)
	assert.Equal(t, uint(7), received.UserID)
	assert.Equal(t, 3, received.VariantCount)
	assert.Equal(t, "https://app.example.com/api/v1/jobs/abc-123/callback", received.CallbackURL)
}

func TestTriggerRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","error":"no capacity"}`))
	}))
	defer server.Close()

	result, err := testClient(server.URL).Trigger(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "no capacity", result.Reason)
}

func TestTriggerNon2xxIsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	result, err := testClient(server.URL).Trigger(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Reason, "503")
}

func TestTriggerTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	_, err := testClient(server.URL).Trigger(context.Background(), sampleRequest())
	assert.Error(t, err)
}

func TestTriggerMissingEndpoint(t *testing.T) {
	client := testClient("")
	_, err := client.Trigger(context.Background(), sampleRequest())
	assert.Error(t, err)
}
