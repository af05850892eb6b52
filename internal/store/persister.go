package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"orgterm/internal/hierarchy"
	"orgterm/internal/metrics"
)

// DefaultRemoteTimeout bounds each background remote write.
const DefaultRemoteTimeout = 10 * time.Second

// Option configures a Persister.
type Option func(*Persister)

// WithRemote enables cache-aside writes to r.
func WithRemote(r Remote) Option {
	return func(p *Persister) {
		p.remote = r
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(p *Persister) {
		p.log = log
	}
}

func WithRemoteTimeout(d time.Duration) Option {
	return func(p *Persister) {
		p.timeout = d
	}
}

// WithEvictable sets the cache keys dropped when the hierarchy does not fit.
func WithEvictable(keys ...string) Option {
	return func(p *Persister) {
		p.evictable = keys
	}
}

// Persister writes the hierarchy to the local cache and, when configured,
// to the remote store. Remote writes run in the background; mutations never
// wait on them.
type Persister struct {
	cache     Cache
	remote    Remote
	log       *logrus.Entry
	timeout   time.Duration
	evictable []string
	onEvict   []func()

	writes   errgroup.Group
	remoteMu sync.Mutex
	seqMu    sync.Mutex
	seq      uint64
	written  uint64
}

func NewPersister(cache Cache, opts ...Option) *Persister {
	p := &Persister{
		cache:     cache,
		log:       logrus.NewEntry(logrus.StandardLogger()),
		timeout:   DefaultRemoteTimeout,
		evictable: []string{LogsKey, LegacyHierarchyKey},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnEvict registers fn to run after auxiliary data was dropped to make room
// for the hierarchy. Holders of that data should drop their copy too.
func (p *Persister) OnEvict(fn func()) {
	p.onEvict = append(p.onEvict, fn)
}

func (p *Persister) HasRemote() bool {
	return p.remote != nil
}

// Load reads the cached hierarchy. found is false when nothing is stored
// or the stored value is an empty array. The legacy v1 key is removed.
func (p *Persister) Load(ctx context.Context) ([]hierarchy.CompactNode, bool, error) {
	if err := p.cache.Delete(ctx, LegacyHierarchyKey); err != nil {
		p.log.WithError(err).Debug("remove legacy hierarchy key")
	}
	raw, ok, err := p.cache.Get(ctx, HierarchyKey)
	if err != nil || !ok {
		return nil, false, err
	}
	tree, err := hierarchy.UnmarshalCompact(raw)
	if err != nil {
		return nil, false, err
	}
	return tree, len(tree) > 0, nil
}

// Persist stores tree. An empty tree removes the entry from both stores.
// The returned error only reflects the local cache; remote failures are
// logged from the background write.
func (p *Persister) Persist(ctx context.Context, tree []hierarchy.CompactNode) error {
	if len(tree) == 0 {
		err := p.cache.Delete(ctx, HierarchyKey)
		metrics.Persist("cache", err)
		p.background(func(ctx context.Context) error { return p.remote.Delete(ctx) })
		return err
	}

	raw, err := hierarchy.MarshalCompact(tree)
	if err != nil {
		return err
	}
	err = p.setWithEviction(ctx, HierarchyKey, raw)
	metrics.Persist("cache", err)
	if err != nil {
		p.log.WithError(err).WithField("key", HierarchyKey).Error("hierarchy not cached; changes will not survive a restart")
	}
	p.background(func(ctx context.Context) error { return p.remote.Save(ctx, tree) })
	return err
}

// SetAux writes auxiliary data that may itself be evicted. Quota failures
// are not retried.
func (p *Persister) SetAux(ctx context.Context, key string, value []byte) error {
	return p.cache.Set(ctx, key, value)
}

func (p *Persister) GetAux(ctx context.Context, key string) ([]byte, bool, error) {
	return p.cache.Get(ctx, key)
}

func (p *Persister) setWithEviction(ctx context.Context, key string, value []byte) error {
	err := p.cache.Set(ctx, key, value)
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	p.log.WithField("key", key).Warn("cache quota exceeded, trimming auxiliary data and retrying")
	metrics.Eviction()
	for _, k := range p.evictable {
		if derr := p.cache.Delete(ctx, k); derr != nil {
			p.log.WithError(derr).WithField("key", k).Warn("evict cache entry")
		}
	}
	for _, fn := range p.onEvict {
		fn()
	}
	return p.cache.Set(ctx, key, value)
}

// background runs a remote write without blocking the caller. Writes are
// applied in submission order; a write overtaken by a newer one is skipped.
func (p *Persister) background(write func(ctx context.Context) error) {
	if p.remote == nil {
		return
	}
	p.seqMu.Lock()
	p.seq++
	seq := p.seq
	p.seqMu.Unlock()

	p.writes.Go(func() error {
		p.remoteMu.Lock()
		defer p.remoteMu.Unlock()
		if seq < p.written {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		err := write(ctx)
		metrics.Persist("remote", err)
		if err != nil {
			p.log.WithError(err).WithField("store", "remote").Error("remote hierarchy write failed")
			return nil
		}
		p.written = seq
		return nil
	})
}

// SyncResult reports what a remote sync pass did.
type SyncResult struct {
	// Pulled is set when the remote held a tree; Tree is that tree and it
	// has been written to the cache.
	Pulled bool
	Tree   []hierarchy.CompactNode
	// Pushed is set when the local tree was uploaded to an empty remote.
	Pushed bool
}

// Sync reconciles with the remote store. A remote tree overwrites the local
// cache; otherwise a non-empty cached tree is uploaded.
func (p *Persister) Sync(ctx context.Context) (SyncResult, error) {
	if p.remote == nil {
		return SyncResult{}, ErrNoRemote
	}
	tree, found, err := p.remote.Load(ctx)
	if err != nil {
		metrics.Sync("error")
		return SyncResult{}, errors.Wrap(err, "remote sync")
	}
	if found {
		raw, err := hierarchy.MarshalCompact(tree)
		if err != nil {
			return SyncResult{}, err
		}
		if err := p.setWithEviction(ctx, HierarchyKey, raw); err != nil {
			p.log.WithError(err).Warn("cache remote hierarchy")
		}
		metrics.Sync("pulled")
		return SyncResult{Pulled: true, Tree: tree}, nil
	}

	local, ok, err := p.Load(ctx)
	if err != nil || !ok {
		metrics.Sync("noop")
		return SyncResult{}, err
	}
	if err := p.remote.Save(ctx, local); err != nil {
		metrics.Sync("error")
		return SyncResult{}, errors.Wrap(err, "upload local hierarchy")
	}
	metrics.Sync("pushed")
	return SyncResult{Pushed: true}, nil
}

// Wait blocks until every background remote write has finished.
func (p *Persister) Wait() {
	_ = p.writes.Wait()
}

// Close waits for pending writes and closes the remote.
func (p *Persister) Close(ctx context.Context) error {
	p.Wait()
	if p.remote == nil {
		return nil
	}
	return p.remote.Close(ctx)
}
