package rbac

import (
	"context"
	"sort"
	"sync"
	"time"
)

type scopedKey struct {
	id  int64
	key string
}

// MemoryStore is an in-process Store and StaffDirectory. It backs local
// development (RBAC_STORE=memory) and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	staff       map[int64]StaffMember
	definitions map[string]PermissionDefinition
	defaults    map[scopedKey]RoleDefault
	overrides   map[scopedKey]StaffOverride
	now         func() time.Time
}

var (
	_ Store          = (*MemoryStore)(nil)
	_ StaffDirectory = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		staff:       make(map[int64]StaffMember),
		definitions: make(map[string]PermissionDefinition),
		defaults:    make(map[scopedKey]RoleDefault),
		overrides:   make(map[scopedKey]StaffOverride),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PutStaff adds or replaces a staff member.
func (m *MemoryStore) PutStaff(member StaffMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[member.ID] = member
}

// GetStaff implements StaffDirectory.
func (m *MemoryStore) GetStaff(_ context.Context, staffID int64) Lookup[StaffMember] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	member, ok := m.staff[staffID]
	if !ok {
		return NotFound[StaffMember]()
	}
	return Found(member)
}

// WithTx runs fn against the store itself; writes are individually atomic.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return fn(ctx, m)
}

// GetDefinition implements Registry.
func (m *MemoryStore) GetDefinition(_ context.Context, module, action string) Lookup[PermissionDefinition] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.definitions[Key(module, action)]
	if !ok {
		return NotFound[PermissionDefinition]()
	}
	return Found(def)
}

// ActiveDefinitions implements Registry.
func (m *MemoryStore) ActiveDefinitions(_ context.Context) Lookup[[]PermissionDefinition] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	defs := make([]PermissionDefinition, 0, len(m.definitions))
	for _, def := range m.definitions {
		if def.Active {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key() < defs[j].Key() })
	return Found(defs)
}

// UpsertDefinition implements RegistryWriter.
func (m *MemoryStore) UpsertDefinition(_ context.Context, def PermissionDefinition) error {
	def.Module, def.Action = normalize(def.Module), normalize(def.Action)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.Key()] = def
	return nil
}

// GetRoleDefault implements RoleDefaults.
func (m *MemoryStore) GetRoleDefault(_ context.Context, roleTypeID int64, module, action string) Lookup[RoleDefault] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.defaults[scopedKey{roleTypeID, Key(module, action)}]
	if !ok {
		return NotFound[RoleDefault]()
	}
	return Found(def)
}

// RoleDefaults implements RoleDefaults.
func (m *MemoryStore) RoleDefaults(_ context.Context, roleTypeID int64) Lookup[[]RoleDefault] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoleDefault, 0)
	for k, def := range m.defaults {
		if k.id == roleTypeID {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return Found(out)
}

// SetRoleDefault implements RoleDefaultWriter.
func (m *MemoryStore) SetRoleDefault(_ context.Context, def RoleDefault) error {
	def.Module, def.Action = normalize(def.Module), normalize(def.Action)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[scopedKey{def.RoleTypeID, def.Key()}] = def
	return nil
}

// RemoveRoleDefault implements RoleDefaultWriter.
func (m *MemoryStore) RemoveRoleDefault(_ context.Context, roleTypeID int64, module, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scopedKey{roleTypeID, Key(module, action)}
	if _, ok := m.defaults[k]; !ok {
		return ErrNotFound
	}
	delete(m.defaults, k)
	return nil
}

// GetOverride implements Overrides.
func (m *MemoryStore) GetOverride(_ context.Context, staffID int64, module, action string) Lookup[StaffOverride] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.overrides[scopedKey{staffID, Key(module, action)}]
	if !ok {
		return NotFound[StaffOverride]()
	}
	return Found(o)
}

// Overrides implements Overrides.
func (m *MemoryStore) Overrides(_ context.Context, staffID int64) Lookup[[]StaffOverride] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StaffOverride, 0)
	for k, o := range m.overrides {
		if k.id == staffID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return Found(out)
}

// SetOverride implements OverrideWriter.
func (m *MemoryStore) SetOverride(_ context.Context, o StaffOverride) error {
	o.Module, o.Action = normalize(o.Module), normalize(o.Action)
	o.UpdatedAt = m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[scopedKey{o.StaffID, o.Key()}] = o
	return nil
}

// RemoveOverride implements OverrideWriter.
func (m *MemoryStore) RemoveOverride(_ context.Context, staffID int64, module, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scopedKey{staffID, Key(module, action)}
	if _, ok := m.overrides[k]; !ok {
		return ErrNotFound
	}
	delete(m.overrides, k)
	return nil
}

// PruneInactiveOverrides implements OverrideWriter.
func (m *MemoryStore) PruneInactiveOverrides(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for k := range m.overrides {
		if member, ok := m.staff[k.id]; ok && !member.Active {
			delete(m.overrides, k)
			removed++
		}
	}
	return removed, nil
}
