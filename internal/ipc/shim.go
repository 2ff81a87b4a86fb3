package ipc

import (
	"errors"
	"time"
)

// pollingSem adds timed acquire to a [Sem] whose own Acquire only supports a
// single non-blocking attempt (timeout == 0). It alternates non-blocking
// attempts with sleeps of clamp(timeout/5, 500ms, 2s) until the deadline.
type pollingSem struct {
	inner Sem
}

// NewPolling wraps inner so that Acquire supports real timeouts by polling.
// inner.Acquire is only ever called with timeout 0.
func NewPolling(inner Sem) Sem {
	return &pollingSem{inner: inner}
}

const (
	minPollInterval = 500 * time.Millisecond
	maxPollInterval = 2 * time.Second
)

func (p *pollingSem) Acquire(timeout time.Duration) error {
	if timeout == 0 {
		return p.inner.Acquire(0)
	}

	if timeout < 0 {
		for {
			err := p.inner.Acquire(0)
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrBusy) {
				return err
			}
			time.Sleep(maxPollInterval)
		}
	}

	deadline := time.Now().Add(timeout)
	interval := clamp(timeout/5, minPollInterval, maxPollInterval)

	for {
		err := p.inner.Acquire(0)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrBusy) {
			return err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrBusy
		}

		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)
	}
}

func (p *pollingSem) Release() error      { return p.inner.Release() }
func (p *pollingSem) Value() (int, error) { return p.inner.Value() }
func (p *pollingSem) Close() error        { return p.inner.Close() }

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
