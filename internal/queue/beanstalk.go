// Beanstalk backend: reserves jobs from a beanstalkd tube named after the
// dispatcher's machine class, buries them immediately on reserve (so a
// dispatcher crash leaves the job in a retrievable bad state rather than
// silently redelivering it), and deletes the buried job once a supervisor
// has been spawned for it.
//
// Grounded on the beanstalkd client usage shown by the cmdstalk brokers in
// the retrieved corpus (github.com/beanstalkd/go-beanstalk: Dial, NewTubeSet,
// Reserve, Bury, Delete) and on the exact reserve/bury/delete sequencing in
// original_source/teuthology/dispatcher/__init__.py.
//
// beanstalkd itself has no notion of a paused queue, so Stats and Pause are
// delegated to an embedded report-http client, exactly as the original
// source's pause_queue() always goes through the reporting service
// regardless of which backend reserved the job.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beanstalkd/go-beanstalk"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
	"gopkg.in/yaml.v3"
)

// buryPriority is the priority buried jobs are kept at; it only matters
// relative to other buried jobs, which dispatchers never race each other on.
const buryPriority = 1024

// tubeReserver is the slice of *beanstalk.TubeSet the backend depends on,
// narrowed so tests can substitute a fake without a live beanstalkd.
type tubeReserver interface {
	Reserve(timeout time.Duration) (id uint64, body []byte, err error)
}

// jobConn is the slice of *beanstalk.Conn the backend depends on for
// bury/delete/close, narrowed for the same reason.
type jobConn interface {
	Bury(id uint64, pri uint32) error
	Delete(id uint64) error
	Close() error
}

// BeanstalkBackend implements Backend against a beanstalkd tube.
type BeanstalkBackend struct {
	conn   jobConn
	tubes  tubeReserver
	report *ReportHTTPBackend
}

// NewBeanstalkBackend dials addr and watches the tube named machineType.
// reportBaseURL wires the pause/stats/fail side-channel to the reporting
// service; it may be empty in tests that don't exercise those operations.
func NewBeanstalkBackend(addr, machineType, reportBaseURL string, httpTimeout time.Duration) (*BeanstalkBackend, error) {
	conn, err := beanstalk.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial beanstalkd at %s: %w", addr, err)
	}

	var report *ReportHTTPBackend
	if reportBaseURL != "" {
		report, err = NewReportHTTPBackend(reportBaseURL, machineType, httpTimeout)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &BeanstalkBackend{
		conn:   conn,
		tubes:  beanstalk.NewTubeSet(conn, machineType),
		report: report,
	}, nil
}

// Reserve blocks up to timeout for a job, then buries it on success.
func (b *BeanstalkBackend) Reserve(_ context.Context, timeout time.Duration) (*types.JobDescriptor, error) {
	id, body, err := b.tubes.Reserve(timeout)
	if err != nil {
		var ce beanstalk.ConnError
		if errors.As(err, &ce) && errors.Is(ce.Err, beanstalk.ErrTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("beanstalk reserve: %w", err)
	}

	var desc types.JobDescriptor
	if err := yaml.Unmarshal(body, &desc); err != nil {
		// Malformed body: bury it so an operator can inspect it, and return
		// the decode error; the dispatcher logs it and keeps polling.
		_ = b.conn.Bury(id, buryPriority)
		return nil, fmt.Errorf("decode job body for beanstalk id %d: %w", id, err)
	}
	desc.BeanstalkID = id

	if err := b.conn.Bury(id, buryPriority); err != nil {
		return nil, fmt.Errorf("bury job %d: %w", id, err)
	}

	return &desc, nil
}

// Ack deletes the buried job. Errors are the caller's to log and swallow.
func (b *BeanstalkBackend) Ack(_ context.Context, d *types.JobDescriptor) error {
	if err := b.conn.Delete(d.BeanstalkID); err != nil {
		return fmt.Errorf("delete beanstalk job %d: %w", d.BeanstalkID, err)
	}
	return nil
}

// Fail reports failure to the reporting service. The bury from Reserve is
// not undone: it is additional signal, not a replacement.
func (b *BeanstalkBackend) Fail(ctx context.Context, d *types.JobDescriptor, reason string) error {
	if b.report == nil {
		slog.Warn("no report-http backend configured, dropping fail report", "job_id", d.JobID, "reason", reason)
		return nil
	}
	return b.report.Fail(ctx, d, reason)
}

// ReportRunning always delegates to the report-http side-channel, exactly
// like Stats and Pause: beanstalk's own Ack means "delete the reserved job"
// (see Ack above), which is not a status report at all, so the pre-lease
// "running" push the leaser performs must never go through it.
func (b *BeanstalkBackend) ReportRunning(ctx context.Context, jobID string) error {
	if b.report == nil {
		slog.Warn("no report-http backend configured, dropping running report", "job_id", jobID)
		return nil
	}
	return b.report.ReportRunning(ctx, jobID)
}

// Stats is delegated to the reporting service; beanstalkd has no pause flag.
func (b *BeanstalkBackend) Stats(ctx context.Context, machineType string) (Stats, error) {
	if b.report == nil {
		return Stats{}, errors.New("stats require a report-http side-channel, none configured")
	}
	return b.report.Stats(ctx, machineType)
}

// Pause is delegated to the reporting service.
func (b *BeanstalkBackend) Pause(ctx context.Context, machineType string, paused bool, by string, duration time.Duration) error {
	if b.report == nil {
		return errors.New("pause requires a report-http side-channel, none configured")
	}
	return b.report.Pause(ctx, machineType, paused, by, duration)
}

// Close closes the beanstalkd connection.
func (b *BeanstalkBackend) Close() error {
	if b.report != nil {
		_ = b.report.Close()
	}
	return b.conn.Close()
}
