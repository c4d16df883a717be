package client

import (
	"errors"
	"sync"
)

// Controller is the status object of a call. The caller owns it and reads the outcome
// after Call returns; Call resets it at the start of every attempt.
type Controller struct {
	mu     sync.Mutex
	failed bool
	reason string
	err    error
}

// Reset clears the outcome of a previous call.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = false
	c.reason = ""
	c.err = nil
}

func (c *Controller) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// ErrorText returns the failure message, or "" if the call succeeded.
func (c *Controller) ErrorText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// SetFailed marks the call failed with a human-readable reason.
func (c *Controller) SetFailed(reason string) {
	c.setFailed(errors.New(reason))
}

// Err returns the failure as an error, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// setFailed keeps the first failure of an attempt.
func (c *Controller) setFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return
	}
	c.failed = true
	c.reason = err.Error()
	c.err = err
}
