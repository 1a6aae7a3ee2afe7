package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/handshake/core"
)

// MemoryRegistry is an in-memory implementation of ports.ModelRegistry.
// The hash index and the insert share one critical section.
type MemoryRegistry struct {
	models []core.Model
	byID   map[string]int
	byHash map[string]string
	now    func() time.Time
	mu     sync.RWMutex
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID:   make(map[string]int),
		byHash: make(map[string]string),
		now:    time.Now,
	}
}

// Exists reports whether a model with hash is stored
func (r *MemoryRegistry) Exists(ctx context.Context, hash string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.byHash[hash]
	return exists, nil
}

// FindByID returns a copy of the model with id
func (r *MemoryRegistry) FindByID(ctx context.Context, id string) (*core.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, exists := r.byID[id]
	if !exists {
		return nil, core.ErrNotFound
	}

	m := cloneModel(r.models[idx])
	return &m, nil
}

// FindByHash returns a copy of the model registered under hash
func (r *MemoryRegistry) FindByHash(ctx context.Context, hash string) (*core.Model, error) {
	r.mu.RLock()
	id, exists := r.byHash[hash]
	r.mu.RUnlock()

	if !exists {
		return nil, core.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// FindByOwner returns the models of one wallet in insertion order
func (r *MemoryRegistry) FindByOwner(ctx context.Context, owner string) ([]core.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner = core.NormalizeAddress(owner)
	out := []core.Model{}
	for _, m := range r.models {
		if m.OwnerAddress == owner {
			out = append(out, cloneModel(m))
		}
	}
	return out, nil
}

// List returns models in insertion order
func (r *MemoryRegistry) List(ctx context.Context) ([]core.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, cloneModel(m))
	}
	return out, nil
}

// Register stores a copy of model, assigning an id and timestamps
func (r *MemoryRegistry) Register(ctx context.Context, model *core.Model) (*core.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, taken := r.byHash[model.ModelHash]; taken {
		return nil, &core.ConflictError{ExistingID: existing, Hash: model.ModelHash}
	}

	m := cloneModel(*model)
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if _, taken := r.byID[m.ID]; taken {
		return nil, core.Validationf("model id %s already in use", m.ID)
	}
	m.OwnerAddress = core.NormalizeAddress(m.OwnerAddress)
	now := r.now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Parents == nil {
		m.Parents = []string{}
	}

	r.byID[m.ID] = len(r.models)
	r.byHash[m.ModelHash] = m.ID
	r.models = append(r.models, m)

	out := cloneModel(m)
	return &out, nil
}

func cloneModel(m core.Model) core.Model {
	if m.Parents != nil {
		m.Parents = append([]string{}, m.Parents...)
	}
	return m
}
