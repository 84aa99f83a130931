package core

// Retry controller — wraps outbound chain calls in a fixed delay schedule and
// classifies faults so operators can tell a flaky socket from a real bug.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// IsTransient reports whether err is a recognized transient transport fault:
// connection closed, connection refused, or broken pipe.
func IsTransient(err error) bool {
	if errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}

// faultName labels a fault for the alert channel.
func faultName(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ConnectionRefused"
	case errors.Is(err, syscall.EPIPE):
		return "BrokenPipe"
	case IsTransient(err):
		return "ConnectionClosed"
	}
	return "Unexpected error"
}

// Retrier re-runs an operation over a configured delay schedule. Every
// failed attempt that is followed by a retry is reported on the alert
// channel; once the schedule is exhausted the last error propagates without
// a further alert.
type Retrier struct {
	Delays []time.Duration
	Alerts *logrus.Logger
}

// Do runs fn, retrying after each configured delay. The description and block
// coordinates label the alert entries.
func (r *Retrier) Do(ctx context.Context, description string, opts FetchOpts, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	for _, delay := range r.Delays {
		entry := r.Alerts.WithField("block_hash", opts.Hash)
		if opts.Number != nil {
			entry = entry.WithField("block_number", *opts.Number)
		}
		msg := fmt.Sprintf("%s while %s. Retrying in %s ...", faultName(err), description, delay)
		if IsTransient(err) {
			entry.Error(msg)
		} else {
			entry.WithError(err).Error(msg)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
