package syncq

import (
	"context"
	"encoding/json"
	"fmt"
)

// RemoteService replays mutations for one entity kind against the remote
// business API. Any non-nil error is treated as a retryable failure.
type RemoteService interface {
	Create(ctx context.Context, payload json.RawMessage) error
	Update(ctx context.Context, payload json.RawMessage) error
	Delete(ctx context.Context, payload json.RawMessage) error
}

// Dispatcher routes queue items to the remote service registered for their
// entity kind.
type Dispatcher struct {
	services map[EntityKind]RemoteService
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{services: make(map[EntityKind]RemoteService)}
}

// Register binds a remote service to an entity kind, replacing any
// previous binding.
func (d *Dispatcher) Register(kind EntityKind, svc RemoteService) {
	d.services[kind] = svc
}

// dispatch replays one item. An unregistered kind is a retryable failure
// like any other remote error.
func (d *Dispatcher) dispatch(ctx context.Context, item *Item) error {
	svc, ok := d.services[item.Kind]
	if !ok {
		return fmt.Errorf("no remote service registered for entity kind %q", item.Kind)
	}
	switch item.Op {
	case OpCreate:
		return svc.Create(ctx, item.Payload)
	case OpUpdate:
		return svc.Update(ctx, item.Payload)
	case OpDelete:
		return svc.Delete(ctx, item.Payload)
	default:
		return fmt.Errorf("unknown operation %q", item.Op)
	}
}
