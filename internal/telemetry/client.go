// Package telemetry ships anonymized feedback records to the research
// backend. Delivery is strictly best-effort: every call carries a short
// timeout and failures are logged, never surfaced, so a dead backend can
// not slow down or break the feedback stream.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"codementor/internal/config"
	"codementor/internal/logging"
)

// ==== RECORD ====

// Record is one feedback round as reported to the backend. FeedbackRaw is
// the unfiltered model output; FeedbackFinal is what the student actually
// saw after filtering.
type Record struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	Program       string    `json:"program"`
	Question      string    `json:"question"`
	Context       string    `json:"context"`
	FeedbackRaw   string    `json:"feedback_raw"`
	FeedbackFinal string    `json:"feedback_final"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Rating        int       `json:"rating,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	CreationTime  time.Time `json:"creation_time"`
	Release       string    `json:"release"`
}

// ==== CLIENT ====

// Client posts records to the feedbackrequest endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	release    string
	httpClient *http.Client
}

// NewClient builds a telemetry client from config. The timeout bounds each
// individual call.
func NewClient(cfg config.TelemetryConfig, timeout time.Duration) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		release:    cfg.Release,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewRecord starts a record for one feedback round.
func (c *Client) NewRecord(clientID, program, question, contextText string) *Record {
	return &Record{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		Program:      program,
		Question:     question,
		Context:      contextText,
		CreationTime: time.Now().UTC(),
		Release:      c.release,
	}
}

// Create registers the record with the backend. The backend assigns its own
// id and creation time; both replace the client-side placeholders so that
// later updates address the resource the backend actually created.
func (c *Client) Create(ctx context.Context, rec *Record) {
	body, ok := c.send(ctx, http.MethodPost, c.baseURL+"/feedbackrequest", rec)
	if !ok {
		return
	}

	var assigned struct {
		ID           string    `json:"id"`
		CreationTime time.Time `json:"creation_time"`
	}
	if err := json.Unmarshal(body, &assigned); err != nil {
		logging.Telemetry("create response not decodable, keeping client id %s: %v", rec.ID, err)
		return
	}
	if assigned.ID != "" {
		rec.ID = assigned.ID
	}
	if !assigned.CreationTime.IsZero() {
		rec.CreationTime = assigned.CreationTime
	}
}

// Update replaces the stored record, typically after finalize or a rating.
func (c *Client) Update(ctx context.Context, rec *Record) {
	c.send(ctx, http.MethodPut, fmt.Sprintf("%s/feedbackrequest/%s", c.baseURL, rec.ID), rec)
}

// send delivers the record and returns the response body on success.
func (c *Client) send(ctx context.Context, method, url string, rec *Record) ([]byte, bool) {
	if c.baseURL == "" {
		logging.TelemetryDebug("no backend configured, dropping %s", method)
		return nil, false
	}

	body, err := json.Marshal(rec)
	if err != nil {
		logging.Telemetry("marshal failed, dropping record %s: %v", rec.ID, err)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		logging.Telemetry("building %s request failed: %v", method, err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Basic "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Telemetry("%s %s failed: %v", method, url, err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logging.Telemetry("%s %s returned status %d", method, url, resp.StatusCode)
		return nil, false
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.Telemetry("reading %s response failed: %v", method, err)
		return nil, false
	}
	logging.TelemetryDebug("%s record %s delivered", method, rec.ID)
	return respBody, true
}
