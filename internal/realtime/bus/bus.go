// Package bus publishes pipeline stage events so dashboards can follow a run live.
package bus

import (
	"context"
	"errors"
	"time"
)

var (
	errNoCallback = errors.New("onEvent callback required")
	errClosed     = errors.New("bus closed")
)

// Event is one pipeline stage transition.
type Event struct {
	RunID  string         `json:"run_id"`
	Kind   string         `json:"kind"`
	Stage  string         `json:"stage"`
	Status string         `json:"status"`
	Counts map[string]int `json:"counts,omitempty"`
	Error  string         `json:"error,omitempty"`
	At     time.Time      `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// StartForwarder delivers every event on the channel to onEvent until ctx is done.
	StartForwarder(ctx context.Context, onEvent func(ev Event)) error
	Close() error
}

// Nop drops every event. The pipeline falls back to it when given no bus.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) StartForwarder(context.Context, func(ev Event)) error { return nil }

func (Nop) Close() error { return nil }
