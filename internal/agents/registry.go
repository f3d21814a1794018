// Package agents tracks each agent's availability state.
//
// State transitions:
//
//	offline ↔ available ↔ busy
//
// Records are created lazily on first reference and never deleted.
package agents

import (
	"errors"
	"sync"

	"warm-transfer-service/internal/models"
)

// Errors for invalid status updates.
var (
	ErrCustomerRequired = errors.New("busy status requires a current customer")
	ErrCustomerNotBusy  = errors.New("current customer only valid with busy status")
	ErrUnknownStatus    = errors.New("unknown agent status")
)

// AvailableHook is invoked synchronously whenever an agent transitions
// to available, so a waiting customer can be matched before the status
// change returns to its caller.
type AvailableHook func(agentID string)

// Registry holds agent records. Safe for concurrent use. The
// on-available hook runs outside the registry lock so it may call back
// into the registry.
type Registry struct {
	mu          sync.Mutex
	records     map[string]*models.AgentRecord
	onAvailable AvailableHook
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]*models.AgentRecord)}
}

// SetAvailableHook installs the matcher trigger. Must be called during
// wiring, before the registry receives traffic.
func (r *Registry) SetAvailableHook(hook AvailableHook) {
	r.mu.Lock()
	r.onAvailable = hook
	r.mu.Unlock()
}

// SetStatus transitions an agent to the given status. currentCustomer
// must be set iff status is busy.
func (r *Registry) SetStatus(agentID string, status models.AgentStatus, currentCustomer string) error {
	switch status {
	case models.AgentBusy:
		if currentCustomer == "" {
			return ErrCustomerRequired
		}
	case models.AgentAvailable, models.AgentOffline:
		if currentCustomer != "" {
			return ErrCustomerNotBusy
		}
	default:
		return ErrUnknownStatus
	}

	r.mu.Lock()
	rec := r.record(agentID)
	rec.Status = status
	rec.CurrentCustomer = currentCustomer
	hook := r.onAvailable
	r.mu.Unlock()

	if status == models.AgentAvailable && hook != nil {
		hook(agentID)
	}
	return nil
}

// Get returns a copy of the agent's record, lazily initializing an
// offline record for unseen agents.
func (r *Registry) Get(agentID string) models.AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.record(agentID)
}

// AvailableCount returns the number of agents currently available.
func (r *Registry) AvailableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.records {
		if rec.Status == models.AgentAvailable {
			n++
		}
	}
	return n
}

// FirstAvailable returns an available agent's id, if any.
func (r *Registry) FirstAvailable() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if rec.Status == models.AgentAvailable {
			return id, true
		}
	}
	return "", false
}

// Assign atomically marks an available agent busy with the given
// customer. Returns false when the agent is not available, so two
// concurrent matches can never bind the same agent twice.
func (r *Registry) Assign(agentID, customer string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(agentID)
	if rec.Status != models.AgentAvailable {
		return false
	}
	rec.Status = models.AgentBusy
	rec.CurrentCustomer = customer
	return true
}

// record returns the live record for agentID. Caller must hold mu.
func (r *Registry) record(agentID string) *models.AgentRecord {
	rec, ok := r.records[agentID]
	if !ok {
		rec = &models.AgentRecord{ID: agentID, Status: models.AgentOffline}
		r.records[agentID] = rec
	}
	return rec
}
