package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Project is the tenant identity the pipeline verifies against.
type Project struct {
	ID        string
	PublicKey string
	SecretKey string

	// HoneypotField is the decoy name injected into this project's forms,
	// empty when the project relies on the payload-level honeypot only.
	HoneypotField string
}

// ErrProjectNotFound is returned by a directory when no project matches.
var ErrProjectNotFound = errors.New("project not found")

// ProjectDirectory resolves a public project key to the project record.
type ProjectDirectory interface {
	LookupByPublicKey(ctx context.Context, publicKey string) (*Project, error)
}

// Submission is the admitted payload handed to the persistence collaborator.
type Submission struct {
	ProjectID    string
	IdentityHash string
	UserAgent    string
	Fields       map[string]any
}

// Recorder persists admitted submissions and mints their identifiers. The
// pipeline never writes durably itself; a crash between admission and the
// recorder's write is an accepted at-most-once gap.
type Recorder interface {
	Create(ctx context.Context, sub Submission) (string, error)
}

// MemoryDirectory is an in-process ProjectDirectory for development and
// tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

var _ ProjectDirectory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{projects: make(map[string]*Project)}
}

// Add registers a project under its public key.
func (d *MemoryDirectory) Add(p Project) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.projects[p.PublicKey] = &p
}

func (d *MemoryDirectory) LookupByPublicKey(ctx context.Context, publicKey string) (*Project, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.projects[publicKey]
	if !ok {
		return nil, ErrProjectNotFound
	}
	copy := *p
	return &copy, nil
}

// MemoryRecorder stores admitted submissions in memory and mints UUID
// submission IDs. Development/test stand-in for the real persistence layer.
type MemoryRecorder struct {
	mu          sync.Mutex
	submissions map[string]Submission
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{submissions: make(map[string]Submission)}
}

func (r *MemoryRecorder) Create(ctx context.Context, sub Submission) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.submissions[id] = sub
	return id, nil
}

// Len reports how many submissions were recorded.
func (r *MemoryRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submissions)
}
