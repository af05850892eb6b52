package store

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"orgterm/internal/hierarchy"
)

// Remote drivers.
const (
	DriverNone     = "none"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// ErrNoRemote is returned by OpenRemote when no driver is configured.
var ErrNoRemote = errors.New("no remote store configured")

// Remote holds the shared hierarchy document (settings/hierarchy).
type Remote interface {
	// Load returns found=false when the document does not exist.
	Load(ctx context.Context) (tree []hierarchy.CompactNode, found bool, err error)
	Save(ctx context.Context, tree []hierarchy.CompactNode) error
	Delete(ctx context.Context) error
	Close(ctx context.Context) error
}

// RemoteConfig selects and addresses a remote store.
type RemoteConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	URL      string `yaml:"url" env:"URL"`
	Database string `yaml:"database" env:"DATABASE"`
}

// OpenRemote connects to the configured remote store.
func OpenRemote(ctx context.Context, cfg RemoteConfig) (Remote, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverNone:
		return nil, ErrNoRemote
	case DriverMongo:
		return OpenMongo(ctx, cfg.URL, cfg.Database)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.URL)
	case DriverRedis:
		return OpenRedis(ctx, cfg.URL)
	}
	return nil, errors.Errorf("unknown remote driver %q", cfg.Driver)
}

// MemoryRemote is an in-process Remote.
type MemoryRemote struct {
	mu    sync.Mutex
	tree  []hierarchy.CompactNode
	found bool
	err   error
	saves int
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{}
}

// Fail makes every following call return err until Fail(nil).
func (r *MemoryRemote) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Saves is the number of successful Save calls.
func (r *MemoryRemote) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *MemoryRemote) Load(context.Context) ([]hierarchy.CompactNode, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, false, r.err
	}
	return r.tree, r.found, nil
}

func (r *MemoryRemote) Save(_ context.Context, tree []hierarchy.CompactNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tree = tree
	r.found = true
	r.saves++
	return nil
}

func (r *MemoryRemote) Delete(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tree = nil
	r.found = false
	return nil
}

func (r *MemoryRemote) Close(context.Context) error {
	return nil
}
