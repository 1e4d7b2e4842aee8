// Package progress remembers the last viewed position of each document and
// keeps those records attached to documents that are renamed or moved.
package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/debounce"
	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/storage"
)

// DefaultDelay is the quiet period before position updates are persisted.
const DefaultDelay = 500 * time.Millisecond

// Store is the in-memory owner of the persisted document. Memory is
// authoritative; the backend is written on a debounce.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
	doc     storage.Document
	persist *debounce.Debouncer
	failing bool
	notice  func(error)
	now     func() time.Time
	log     *zap.Logger
	delay   time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithDelay overrides the delay from the persisted settings.
func WithDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithNotice sets the callback that reports persistence failures. It is
// invoked once per run of consecutive failures.
func WithNotice(fn func(error)) Option {
	return func(s *Store) {
		s.notice = fn
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open loads the persisted document from backend.
func Open(ctx context.Context, backend storage.Backend, opts ...Option) (*Store, error) {
	doc, err := storage.Load(ctx, backend)
	if err != nil {
		return nil, err
	}
	return newStore(backend, doc, opts...), nil
}

func newStore(backend storage.Backend, doc storage.Document, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		doc:     doc,
		now:     time.Now,
		log:     zap.NewNop(),
		delay:   DefaultDelay,
	}
	if ms := doc.Settings.ProgressDebounceMs; ms > 0 {
		s.delay = time.Duration(ms) * time.Millisecond
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.doc.Progress == nil {
		s.doc.Progress = make(map[string]storage.Record)
	}
	s.persist = debounce.New(s.delay)
	return s
}

// Get returns the saved position for path.
func (s *Store) Get(path string) (storage.Position, bool) {
	rec, ok := s.Record(path)
	return rec.Position, ok
}

// Record returns the full record for path.
func (s *Store) Record(path string) (storage.Record, bool) {
	key := pathutil.NormalizeKey(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.doc.Progress[key]
	return rec, ok
}

// Set records pos for path and schedules a write.
func (s *Store) Set(path string, pos storage.Position) {
	key := pathutil.NormalizeKey(path)
	if key == "" {
		return
	}

	s.mu.Lock()
	s.doc.Progress[key] = storage.Record{Position: pos, UpdatedAt: s.now().UnixMilli()}
	s.mu.Unlock()

	s.schedule()
}

// Delete forgets the record for path.
func (s *Store) Delete(path string) bool {
	key := pathutil.NormalizeKey(path)

	s.mu.Lock()
	_, ok := s.doc.Progress[key]
	delete(s.doc.Progress, key)
	s.mu.Unlock()

	if ok {
		s.schedule()
	}
	return ok
}

// Rename moves the record at oldPath to newPath. When newPath already has a
// record the old one is discarded rather than merged. It reports whether a
// record existed at oldPath.
func (s *Store) Rename(oldPath, newPath string) bool {
	oldKey := pathutil.NormalizeKey(oldPath)
	newKey := pathutil.NormalizeKey(newPath)
	if oldKey == "" || newKey == "" || oldKey == newKey {
		return false
	}

	s.mu.Lock()
	rec, ok := s.doc.Progress[oldKey]
	if ok {
		if _, occupied := s.doc.Progress[newKey]; !occupied {
			s.doc.Progress[newKey] = rec
		} else {
			s.log.Debug("rename destination occupied, dropping source record",
				zap.String("from", oldKey), zap.String("to", newKey))
		}
		delete(s.doc.Progress, oldKey)
	}
	s.mu.Unlock()

	if ok {
		s.schedule()
	}
	return ok
}

// RenameTree moves every record below oldPrefix to the same suffix below
// newPrefix. Records whose destination is occupied are dropped. The number of
// source records removed is returned.
func (s *Store) RenameTree(oldPrefix, newPrefix string) int {
	oldKey := pathutil.NormalizeKey(oldPrefix)
	newKey := pathutil.NormalizeKey(newPrefix)
	if oldKey == "" || oldKey == newKey {
		return 0
	}

	s.mu.Lock()
	var sources []string
	next := make(map[string]storage.Record, len(s.doc.Progress))
	for key, rec := range s.doc.Progress {
		if _, ok := pathutil.HasPathPrefix(key, oldKey); ok {
			sources = append(sources, key)
			continue
		}
		next[key] = rec
	}
	sort.Strings(sources)

	for _, key := range sources {
		suffix, _ := pathutil.HasPathPrefix(key, oldKey)
		dest := suffix
		if newKey != "" {
			dest = newKey + "/" + suffix
		}
		if _, occupied := next[dest]; occupied {
			s.log.Debug("rename destination occupied, dropping source record",
				zap.String("from", key), zap.String("to", dest))
			continue
		}
		next[dest] = s.doc.Progress[key]
	}
	if len(sources) > 0 {
		s.doc.Progress = next
	}
	s.mu.Unlock()

	if len(sources) > 0 {
		s.schedule()
	}
	return len(sources)
}

// Keys lists every document with a saved position.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.doc.Progress))
	for key := range s.doc.Progress {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Settings returns the persisted settings.
func (s *Store) Settings() storage.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Settings
}

// UpdateSettings applies fn to the settings and schedules a write.
func (s *Store) UpdateSettings(fn func(*storage.Settings)) {
	s.mu.Lock()
	fn(&s.doc.Settings)
	s.mu.Unlock()

	s.schedule()
}

// Pending reports whether a write is scheduled.
func (s *Store) Pending() bool {
	return s.persist.Pending()
}

// Flush cancels the scheduled write and persists now.
func (s *Store) Flush(ctx context.Context) error {
	s.persist.Stop()
	return s.write(ctx)
}

// Close discards any scheduled write. Updates inside the debounce window are
// lost unless Flush was called first.
func (s *Store) Close() error {
	s.persist.Stop()
	return nil
}

func (s *Store) schedule() {
	s.persist.Trigger(func() {
		_ = s.write(context.Background())
	})
}

func (s *Store) write(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.doc
	snapshot.Progress = make(map[string]storage.Record, len(s.doc.Progress))
	for k, v := range s.doc.Progress {
		snapshot.Progress[k] = v
	}
	s.mu.Unlock()

	err := storage.Save(ctx, s.backend, snapshot)

	s.mu.Lock()
	report := err != nil && !s.failing
	s.failing = err != nil
	notice := s.notice
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("persisting progress failed", zap.Error(err))
		if report && notice != nil {
			notice(err)
		}
	}
	return err
}
