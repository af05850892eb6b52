package directory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 200 * time.Millisecond

// FileOption configures a File directory.
type FileOption func(*File)

// WithDebounce sets the reload debounce duration.
func WithDebounce(d time.Duration) FileOption {
	return func(f *File) {
		f.debounce = d
	}
}

// WithLogger sets the logger used for reload failures.
func WithLogger(log *logrus.Entry) FileOption {
	return func(f *File) {
		f.log = log
	}
}

// File is a directory backed by a JSON file holding an array of employees.
// Once watched, edits to the file are picked up and subscribers notified.
type File struct {
	path     string
	debounce time.Duration
	log      *logrus.Entry

	mem *Memory

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	pending *time.Timer
}

// OpenFile reads path and returns a directory over its contents. A missing
// file yields an empty directory.
func OpenFile(path string, opts ...FileOption) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	f := &File{
		path:     abs,
		debounce: DefaultDebounce,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		mem:      NewMemory(),
	}
	for _, opt := range opts {
		opt(f)
	}
	employees, err := readEmployees(abs)
	if err != nil {
		return nil, err
	}
	f.mem.Replace(employees)
	return f, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Get(id string) (Employee, bool) {
	return f.mem.Get(id)
}

func (f *File) All() []Employee {
	return f.mem.All()
}

func (f *File) Subscribe(fn func()) func() {
	return f.mem.Subscribe(fn)
}

// Reload re-reads the file and notifies subscribers.
func (f *File) Reload() error {
	employees, err := readEmployees(f.path)
	if err != nil {
		return err
	}
	f.mem.Replace(employees)
	return nil
}

// Save writes employees to the file atomically and replaces the in-memory set.
func (f *File) Save(employees []Employee) error {
	data, err := json.MarshalIndent(employees, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode directory")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrap(err, "create directory folder")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write directory")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Wrap(err, "replace directory")
	}
	f.mem.Replace(employees)
	return nil
}

// Watch starts reloading on file changes until Close is called.
func (f *File) Watch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	// The parent directory survives editors that save via rename.
	if err := fsw.Add(filepath.Dir(f.path)); err != nil {
		fsw.Close()
		return errors.Wrapf(err, "watch %s", filepath.Dir(f.path))
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.fsw = fsw
	f.cancel = cancel
	go f.watch(ctx, fsw)
	return nil
}

func (f *File) watch(ctx context.Context, fsw *fsnotify.Watcher) {
	target := filepath.Base(f.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				f.schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			f.log.WithError(err).Warn("directory watcher error")
		}
	}
}

func (f *File) schedule() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		f.pending.Stop()
	}
	f.pending = time.AfterFunc(f.debounce, func() {
		if err := f.Reload(); err != nil {
			f.log.WithError(err).WithField("path", f.path).Warn("directory reload failed")
		}
	})
}

// Close stops watching.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		f.pending.Stop()
	}
	if f.cancel != nil {
		f.cancel()
	}
	if f.fsw == nil {
		return nil
	}
	err := f.fsw.Close()
	f.fsw = nil
	return err
}

func readEmployees(path string) ([]Employee, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var employees []Employee
	if err := json.Unmarshal(data, &employees); err != nil {
		var wrapped struct {
			Employees []Employee `json:"employees"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
		employees = wrapped.Employees
	}
	return employees, nil
}
