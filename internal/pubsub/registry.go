package pubsub

import (
	"errors"
	"sync"

	"clips-service/internal/observability"
)

// Payload is the opaque event payload published into a group.
type Payload map[string]interface{}

// ErrSkip is returned by a transform to suppress delivery to that one
// subscriber without affecting the rest of the fan-out.
var ErrSkip = errors.New("skip delivery")

// TransformFunc resolves what a single subscriber receives for a published
// payload. It runs once per subscriber per event.
type TransformFunc func(payload Payload) (map[string]interface{}, error)

// Sink delivers a data frame for one operation on its owning connection.
// Implementations must not block; a closed connection returns an error.
type Sink interface {
	SendData(opID string, payload map[string]interface{}) error
}

// Registration binds one live subscription operation to one group.
type Registration struct {
	Group  string
	ConnID string
	OpID   string

	sink      Sink
	transform TransformFunc
}

type regKey struct {
	connID string
	opID   string
}

// Registry tracks which operations are subscribed to which groups. It is
// mutated by client operations and read by the dispatcher during fan-out.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[regKey]*Registration
	conns  map[string]map[*Registration]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]map[regKey]*Registration),
		conns:  make(map[string]map[*Registration]struct{}),
	}
}

// Register adds the operation to the group's subscriber set. Registering the
// same (group, connection, operation) twice returns the existing registration
// so an event is never delivered twice to one operation.
func (r *Registry) Register(group, connID, opID string, sink Sink, transform TransformFunc) (*Registration, error) {
	if !ValidGroup(group) {
		return nil, ErrUnknownGroup
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := regKey{connID: connID, opID: opID}
	if existing, ok := r.groups[group][key]; ok {
		return existing, nil
	}

	reg := &Registration{
		Group:     group,
		ConnID:    connID,
		OpID:      opID,
		sink:      sink,
		transform: transform,
	}
	if _, ok := r.groups[group]; !ok {
		r.groups[group] = make(map[regKey]*Registration)
	}
	r.groups[group][key] = reg
	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = make(map[*Registration]struct{})
	}
	r.conns[connID][reg] = struct{}{}

	observability.IncSubscriptions(group)
	return reg, nil
}

// Unregister removes one registration. Calling it again is a no-op.
func (r *Registry) Unregister(reg *Registration) {
	if reg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(reg)
}

// UnregisterOperation removes every registration owned by one operation and
// reports whether any existed.
func (r *Registry) UnregisterOperation(connID, opID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	for reg := range r.conns[connID] {
		if reg.OpID == opID {
			r.removeLocked(reg)
			removed = true
		}
	}
	return removed
}

// UnregisterConn removes every registration owned by a connection. After it
// returns, fan-out snapshots no longer include the connection.
func (r *Registry) UnregisterConn(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for reg := range r.conns[connID] {
		r.removeLocked(reg)
	}
}

// SubscribersOf returns a point-in-time snapshot of the group's subscribers.
func (r *Registry) SubscribersOf(group string) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.groups[group]
	snapshot := make([]*Registration, 0, len(regs))
	for _, reg := range regs {
		snapshot = append(snapshot, reg)
	}
	return snapshot
}

func (r *Registry) removeLocked(reg *Registration) {
	key := regKey{connID: reg.ConnID, opID: reg.OpID}
	regs, ok := r.groups[reg.Group]
	if !ok {
		return
	}
	if _, ok := regs[key]; !ok {
		return
	}
	delete(regs, key)
	if len(regs) == 0 {
		delete(r.groups, reg.Group)
	}
	if conns, ok := r.conns[reg.ConnID]; ok {
		delete(conns, reg)
		if len(conns) == 0 {
			delete(r.conns, reg.ConnID)
		}
	}
	observability.DecSubscriptions(reg.Group)
}
