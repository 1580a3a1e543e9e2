package domain

import (
	"context"
	"time"
)

// Conn is a live connection handle owned by the transport layer.
type Conn interface {
	ID() string
}

// Transport moves text to a connection and tears connections down.
type Transport interface {
	Deliver(ctx context.Context, conn Conn, text string) error
	Teardown(ctx context.Context, conn Conn) error
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

type Session struct {
	Identity   string     `json:"identity"`
	Status     Status     `json:"status"`
	ConnID     string     `json:"conn_id,omitempty"`
	LoggedInAt *time.Time `json:"logged_in_at,omitempty"`
	Pending    int        `json:"pending"`
}

func (s Session) Online() bool {
	return s.Status == StatusOnline
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
	OutcomeDropped   Outcome = "dropped"
)
