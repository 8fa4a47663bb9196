// Package queue provides a single façade over the two work-queue backends a
// dispatcher can be configured with: beanstalk and report-http.
//
// Both backends expose the same six operations (Reserve, Ack, Fail,
// ReportRunning, Stats, Pause) so that internal/dispatcher never has to
// branch on backend kind.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// ErrUnknownBackend is returned by New for an unrecognized --queue-backend value.
var ErrUnknownBackend = errors.New("unknown queue backend")

// Stats is the queue length and pause state for one machine class.
type Stats struct {
	Count  int
	Paused bool
}

// Backend is the uniform capability set the dispatcher loop depends on.
//
// Reserve blocks up to timeout for a job on the backend's machine class.
// A nil descriptor with a nil error means "timed out, try again."
type Backend interface {
	Reserve(ctx context.Context, timeout time.Duration) (*types.JobDescriptor, error)
	Ack(ctx context.Context, d *types.JobDescriptor) error
	Fail(ctx context.Context, d *types.JobDescriptor, reason string) error
	// ReportRunning pushes a status=running report for jobID, always via
	// the report-http side channel (directly, or delegated, for beanstalk).
	// This is distinct from Ack, whose meaning is backend-specific.
	ReportRunning(ctx context.Context, jobID string) error
	Stats(ctx context.Context, machineType string) (Stats, error)
	Pause(ctx context.Context, machineType string, paused bool, by string, duration time.Duration) error
	Close() error
}

// Kind names a supported --queue-backend value.
type Kind string

const (
	Beanstalk  Kind = "beanstalk"
	ReportHTTP Kind = "report-http"
)

// Config carries the connection details for whichever backend is selected.
type Config struct {
	Kind        Kind
	MachineType string

	// Beanstalk
	BeanstalkAddr string

	// report-http
	ReportBaseURL string
	HTTPTimeout   time.Duration
}

// New constructs the Backend named by cfg.Kind.
func New(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case Beanstalk:
		return NewBeanstalkBackend(cfg.BeanstalkAddr, cfg.MachineType, cfg.ReportBaseURL, cfg.HTTPTimeout)
	case ReportHTTP:
		return NewReportHTTPBackend(cfg.ReportBaseURL, cfg.MachineType, cfg.HTTPTimeout)
	default:
		return nil, ErrUnknownBackend
	}
}
