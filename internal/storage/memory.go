// Package storage contains the in-memory case, owner and run ledger store used
// when no database is configured, and by tests.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/certdossier/internal/model"
)

// MemoryStore keeps cases, owners and runs in maps guarded by an RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	cases  map[int64]*model.Case
	owners map[int64][]*model.Owner
	runs   map[string]*model.Run
	nextID int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:  make(map[int64]*model.Case),
		owners: make(map[int64][]*model.Owner),
		runs:   make(map[string]*model.Run),
	}
}

// PutCase inserts or replaces a case. A zero ID is assigned.
func (m *MemoryStore) PutCase(c *model.Case) *model.Case {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := *c
	if rec.ID == 0 {
		m.nextID++
		rec.ID = m.nextID
	}
	if rec.Status == "" {
		rec.Status = model.StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.cases[rec.ID] = &rec
	out := rec
	return &out
}

// PutOwner appends an owner to its case. Owners keep insertion order, so the
// first one put is the first one returned.
func (m *MemoryStore) PutOwner(o *model.Owner) (*model.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[o.CaseID]; !ok {
		return nil, fmt.Errorf("case %d: %w", o.CaseID, model.ErrNotFound)
	}
	rec := copyOwner(o)
	if rec.ID == 0 {
		m.nextID++
		rec.ID = m.nextID
	}
	m.owners[rec.CaseID] = append(m.owners[rec.CaseID], rec)
	return copyOwner(rec), nil
}

// GetCase returns a copy of the case.
func (m *MemoryStore) GetCase(_ context.Context, id int64) (*model.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %d: %w", id, model.ErrNotFound)
	}
	out := *c
	return &out, nil
}

// GetFirstOwnerByCase returns the earliest owner of the case.
func (m *MemoryStore) GetFirstOwnerByCase(_ context.Context, caseID int64) (*model.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owners := m.owners[caseID]
	if len(owners) == 0 {
		return nil, fmt.Errorf("owner of case %d: %w", caseID, model.ErrNotFound)
	}
	return copyOwner(owners[0]), nil
}

// ListOwners returns every owner of the case in insertion order.
func (m *MemoryStore) ListOwners(_ context.Context, caseID int64) ([]model.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Owner, 0, len(m.owners[caseID]))
	for _, o := range m.owners[caseID] {
		out = append(out, *copyOwner(o))
	}
	return out, nil
}

// CommitCase applies slot writes, status and dossier link in one step.
func (m *MemoryStore) CommitCase(_ context.Context, commit model.CaseCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[commit.CaseID]
	if !ok {
		return fmt.Errorf("case %d: %w", commit.CaseID, model.ErrNotFound)
	}
	var owner *model.Owner
	if len(commit.Slots) > 0 {
		for _, o := range m.owners[commit.CaseID] {
			if o.ID == commit.OwnerID {
				owner = o
			}
		}
		if owner == nil {
			return fmt.Errorf("owner %d: %w", commit.OwnerID, model.ErrNotFound)
		}
		for slot := range commit.Slots {
			if !slot.Valid() {
				return fmt.Errorf("unknown document slot %q", slot)
			}
		}
	}
	if owner != nil {
		if owner.Documents == nil {
			owner.Documents = model.Documents{}
		}
		for slot, ref := range commit.Slots {
			owner.Documents[slot] = ref
		}
	}
	c.Status = c.Status.Advance(commit.Status)
	if commit.DossierLink != nil {
		link := *commit.DossierLink
		c.DossierLink = &link
	}
	return nil
}

// SaveRun inserts or replaces a run, keeping its original creation time.
func (m *MemoryStore) SaveRun(_ context.Context, run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := copyRun(run)
	if prev, ok := m.runs[run.ID]; ok && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.runs[rec.ID] = rec
	return nil
}

// GetRun returns a run by id.
func (m *MemoryStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
	}
	return copyRun(run), nil
}

// ListRuns returns the runs of a case, newest first.
func (m *MemoryStore) ListRuns(_ context.Context, caseID int64) ([]model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Run
	for _, run := range m.runs {
		if run.CaseID == caseID {
			out = append(out, *copyRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// LatestRun returns the newest run of a case.
func (m *MemoryStore) LatestRun(ctx context.Context, caseID int64) (*model.Run, error) {
	runs, err := m.ListRuns(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("runs of case %d: %w", caseID, model.ErrNotFound)
	}
	return &runs[0], nil
}

func copyOwner(o *model.Owner) *model.Owner {
	out := *o
	out.Documents = make(model.Documents, len(o.Documents))
	for k, v := range o.Documents {
		out.Documents[k] = v
	}
	if o.Spouse != nil {
		sp := *o.Spouse
		out.Spouse = &sp
	}
	return &out
}

func copyRun(r *model.Run) *model.Run {
	out := *r
	out.Outcomes = append([]model.RunOutcome{}, r.Outcomes...)
	out.Errors = append([]string{}, r.Errors...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}
