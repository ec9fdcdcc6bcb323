package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/creatorengine/creatorengine/internal/pkg/env"
	"github.com/creatorengine/creatorengine/internal/pkg/jobs"
)

// Client talks to the external compute provider's trigger endpoint. The
// provider answers synchronously with queued/error and later reports results
// through the job callback route.
type Client struct {
	EndpointURL    string
	CallbackURL    string
	CallbackSecret string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a dispatch client from environment configuration.
func NewClientFromEnv() *Client {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	callbackURL := strings.TrimSpace(env.GetEnv("COMPUTE_CALLBACK_URL", ""))
	if callbackURL == "" && base != "" {
		callbackURL = base + "/api/v1/jobs/%s/callback"
	}

	return &Client{
		EndpointURL:    strings.TrimSpace(env.GetEnv("COMPUTE_ENDPOINT_URL", "")),
		CallbackURL:    callbackURL,
		CallbackSecret: strings.TrimSpace(env.GetEnv("COMPUTE_CALLBACK_SECRET", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type triggerPayload struct {
	JobID        string          `json:"job_id"`
	UserID       uint            `json:"user_id"`
	Kind         string          `json:"kind"`
	SourcePath   string          `json:"source_path"`
	VariantCount int             `json:"variant_count"`
	Settings     json.RawMessage `json:"settings"`
	ParentJobID  string          `json:"parent_job_id,omitempty"`
	CallbackURL  string          `json:"callback_url,omitempty"`
}

type triggerResponse struct {
	Status string `json:"status"`
	CallID string `json:"call_id"`
	Error  string `json:"error"`
}

// Trigger submits a job to the compute endpoint and maps the synchronous
// answer into an accept/reject result. Transport errors are returned as
// errors; an explicit provider rejection is Accepted=false.
func (c *Client) Trigger(ctx context.Context, req jobs.TriggerRequest) (jobs.TriggerResult, error) {
	if strings.TrimSpace(c.EndpointURL) == "" {
		return jobs.TriggerResult{}, errors.New("COMPUTE_ENDPOINT_URL is not configured")
	}

	callbackURL := c.CallbackURL
	if strings.Contains(callbackURL, "%s") {
		callbackURL = fmt.Sprintf(callbackURL, req.JobUUID)
	}

	payload := triggerPayload{
		JobID:        req.JobUUID,
		UserID:       req.UserID,
		Kind:         req.Kind,
		SourcePath:   req.SourcePath,
		VariantCount: req.VariantCount,
		Settings:     json.RawMessage(req.SettingsJSON),
		ParentJobID:  req.ParentJobUUID,
		CallbackURL:  callbackURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return jobs.TriggerResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return jobs.TriggerResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.CallbackSecret != "" {
		httpReq.Header.Set("X-Callback-Secret", c.CallbackSecret)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return jobs.TriggerResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return jobs.TriggerResult{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return jobs.TriggerResult{
			Accepted: false,
			Reason:   fmt.Sprintf("compute endpoint returned status %d", resp.StatusCode),
		}, nil
	}

	var tr triggerResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return jobs.TriggerResult{}, fmt.Errorf("invalid compute endpoint response: %w", err)
	}

	if tr.Status == "error" {
		reason := tr.Error
		if reason == "" {
			reason = "compute endpoint reported an error"
		}
		return jobs.TriggerResult{Accepted: false, Reason: reason}, nil
	}

	return jobs.TriggerResult{Accepted: true, Handle: tr.CallID}, nil
}
