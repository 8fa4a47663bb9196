// report-http backend: this is the paho/queue-free alternative where a
// dispatcher polls a small REST API (the "reporting service") for its next
// job instead of talking beanstalkd directly. It is also the side-channel
// the beanstalk backend uses for Stats and Pause, since beanstalkd has no
// notion of either.
//
// No ecosystem HTTP client library appears anywhere in the retrieved corpus,
// so this talks to the service with stdlib net/http and encoding/json; see
// DESIGN.md for that justification.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// ReportHTTPBackend implements Backend against the reporting service's REST API.
type ReportHTTPBackend struct {
	baseURL     string
	machineType string
	client      *http.Client
}

// NewReportHTTPBackend constructs a client bound to one machine class.
func NewReportHTTPBackend(baseURL, machineType string, timeout time.Duration) (*ReportHTTPBackend, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("report-http backend requires a base URL")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ReportHTTPBackend{
		baseURL:     baseURL,
		machineType: machineType,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

type nextJobResponse struct {
	Job *types.JobDescriptor `json:"job"`
}

// Reserve long-polls the reporting service's next-job endpoint. A 204
// response (no job queued within timeout) is reported as (nil, nil), same as
// a beanstalk reserve timeout.
func (r *ReportHTTPBackend) Reserve(ctx context.Context, timeout time.Duration) (*types.JobDescriptor, error) {
	u := fmt.Sprintf("%s/queue/%s/next_job?timeout=%d", r.baseURL, url.PathEscape(r.machineType), int(timeout.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get next job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get next job: unexpected status %d: %s", resp.StatusCode, body)
	}

	var out nextJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode next job response: %w", err)
	}
	return out.Job, nil
}

type jobStatusUpdate struct {
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Ack marks the job running; the reporting service itself is the durable
// record, so there is no separate delete step as there is for beanstalk.
func (r *ReportHTTPBackend) Ack(ctx context.Context, d *types.JobDescriptor) error {
	return r.putJobStatus(ctx, d.JobID, jobStatusUpdate{Status: "running"})
}

// ReportRunning pushes the same status=running update as Ack, addressed by
// job ID alone; the leaser uses this directly rather than Ack, since it has
// no full JobDescriptor (and, on the beanstalk backend, Ack means something
// else entirely).
func (r *ReportHTTPBackend) ReportRunning(ctx context.Context, jobID string) error {
	return r.putJobStatus(ctx, jobID, jobStatusUpdate{Status: "running"})
}

// Fail reports a dispatch-time failure with reason, matching
// original_source/teuthology/dispatcher/__init__.py's status='fail'.
func (r *ReportHTTPBackend) Fail(ctx context.Context, d *types.JobDescriptor, reason string) error {
	return r.putJobStatus(ctx, d.JobID, jobStatusUpdate{Status: "fail", FailureReason: reason})
}

func (r *ReportHTTPBackend) putJobStatus(ctx context.Context, jobID string, update jobStatusUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/jobs/%s", r.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("put job status for %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("put job status for %s: unexpected status %d: %s", jobID, resp.StatusCode, respBody)
	}
	return nil
}

type statsResponse struct {
	Count  int  `json:"queue_length"`
	Paused bool `json:"paused"`
}

// Stats fetches the current queue length and pause state for machineType.
func (r *ReportHTTPBackend) Stats(ctx context.Context, machineType string) (Stats, error) {
	u := fmt.Sprintf("%s/queue/%s/stats", r.baseURL, url.PathEscape(machineType))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Stats{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("get queue stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Stats{}, fmt.Errorf("get queue stats: unexpected status %d: %s", resp.StatusCode, body)
	}

	var out statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Stats{}, fmt.Errorf("decode queue stats: %w", err)
	}
	return Stats{Count: out.Count, Paused: out.Paused}, nil
}

type pauseRequest struct {
	Paused   bool   `json:"paused"`
	By       string `json:"by,omitempty"`
	Duration int    `json:"duration_seconds,omitempty"`
}

// Pause sets or clears the pause flag for machineType. duration of zero
// means "until explicitly unpaused."
func (r *ReportHTTPBackend) Pause(ctx context.Context, machineType string, paused bool, by string, duration time.Duration) error {
	body, err := json.Marshal(pauseRequest{Paused: paused, By: by, Duration: int(duration.Seconds())})
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/queue/%s/pause", r.baseURL, url.PathEscape(machineType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("put queue pause: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("put queue pause: unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// Close releases the underlying HTTP client's idle connections.
func (r *ReportHTTPBackend) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
