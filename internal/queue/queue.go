// Package queue defines the unit of work handed from triggers to the
// ad-hoc worker pool.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrFull is returned by non-blocking submits when the queue has no room.
	ErrFull = errors.New("queue full")
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue closed")
)

// ProbeRequest asks for a one-off probe of a site. There is no result
// channel; outcomes land in the store.
type ProbeRequest struct {
	SiteID     int64
	Reason     string
	EnqueuedAt time.Time
}

// Queue is the contract between producers and the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, req ProbeRequest) error
	TryEnqueue(req ProbeRequest) error
	Dequeue(ctx context.Context) (ProbeRequest, error)
	Close()
}
