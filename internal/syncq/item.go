package syncq

import (
	"encoding/json"
	"time"
)

// EntityKind identifies the business entity a queued mutation targets.
type EntityKind string

const (
	// KindInvoice targets invoice records.
	KindInvoice EntityKind = "invoice"
	// KindClient targets client records.
	KindClient EntityKind = "client"
	// KindPayment targets payment records.
	KindPayment EntityKind = "payment"
	// KindAttachment targets uploaded attachments.
	KindAttachment EntityKind = "attachment"
)

// Operation is the mutation type replayed against the remote service.
type Operation string

const (
	// OpCreate creates a new remote entity.
	OpCreate Operation = "create"
	// OpUpdate updates an existing remote entity.
	OpUpdate Operation = "update"
	// OpDelete deletes a remote entity.
	OpDelete Operation = "delete"
)

// Item is one pending mutation created while offline. Items keep their
// original queue position across retries; replay is last-writer-wins, with
// no merge against remote changes made after enqueue.
type Item struct {
	ID         string          `json:"id"`
	Kind       EntityKind      `json:"entityKind"`
	Op         Operation       `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
	LastError  string          `json:"lastError,omitempty"`
}

// PassResult summarizes one sync pass. Callers inspect Errors rather than
// handling exceptions; a pass itself never fails.
type PassResult struct {
	SyncedCount int
	FailedCount int
	Errors      []string
}

// Status is a point-in-time view of the queue.
type Status struct {
	IsOnline       bool
	PendingCount   int
	FailedCount    int
	LastSyncTime   time.Time
	SyncInProgress bool
}
