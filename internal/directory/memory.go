package directory

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory for tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]*User
	byID    map[string]*User
}

func NewMemoryDirectory(users ...*User) *MemoryDirectory {
	d := &MemoryDirectory{
		byEmail: make(map[string]*User),
		byID:    make(map[string]*User),
	}
	for _, u := range users {
		d.Add(u)
	}
	return d
}

func (d *MemoryDirectory) Add(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *u
	cp.Email = NormalizeEmail(cp.Email)
	d.byEmail[cp.Email] = &cp
	d.byID[cp.ID] = &cp
}

func (d *MemoryDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *MemoryDirectory) FindByID(_ context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
