package state

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/pathutil"
)

// RenameWindow is how long a Rename event waits for the matching Create.
const RenameWindow = 250 * time.Millisecond

type VaultWatcher struct {
	watcher *fsnotify.Watcher
	vault   string
	exts    map[string]struct{}
	done    chan struct{}
	once    sync.Once
	log     *zap.Logger

	mu       sync.Mutex
	dirs     map[string]struct{}
	tracker  renameTracker
	onChange func(string)
	onRename func(oldRel, newRel string, isDir bool)
	onClose  func()
}

// NewVaultWatcher watches vault recursively. exts lists the file extensions
// that are reported, ".md" is always included.
func NewVaultWatcher(vault string, exts []string, log *zap.Logger) (*VaultWatcher, error) {
	normalizedVault := pathutil.NormalizePath(vault)
	if normalizedVault == "" {
		return nil, errors.New("vault directory cannot be empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watcher := &VaultWatcher{
		watcher: w,
		vault:   normalizedVault,
		exts:    map[string]struct{}{".md": {}},
		done:    make(chan struct{}),
		log:     log,
		dirs:    make(map[string]struct{}),
		tracker: renameTracker{window: RenameWindow},
	}
	for _, ext := range exts {
		watcher.exts[strings.ToLower(ext)] = struct{}{}
	}

	if err := watcher.addRecursive(normalizedVault); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	return watcher, nil
}

// Run dispatches events until ctx is cancelled or the watcher is closed.
func (w *VaultWatcher) Run(ctx context.Context) error {
	if w == nil {
		return nil
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.expire(time.Now().Add(RenameWindow))
			return ctx.Err()
		case <-w.done:
			return nil
		case <-timer.C:
			w.expire(time.Now())
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event, time.Now())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				w.log.Warn("vault watcher error", zap.Error(err))
			}
		}

		w.mu.Lock()
		deadline, waiting := w.tracker.next()
		w.mu.Unlock()
		if waiting {
			timer.Reset(time.Until(deadline))
		}
	}
}

func (w *VaultWatcher) handle(event fsnotify.Event, at time.Time) {
	rel, err := w.relativePath(event.Name)
	if err != nil || rel == "" || hiddenPath(rel) {
		return
	}

	switch {
	case event.Op&fsnotify.Rename != 0:
		w.mu.Lock()
		_, isDir := w.dirs[rel]
		if isDir {
			w.forgetDir(rel)
		}
		w.tracker.renamed(rel, isDir, at)
		w.mu.Unlock()
		if isDir {
			_ = w.watcher.Remove(event.Name)
		}

	case event.Op&fsnotify.Create != 0:
		info, statErr := os.Stat(event.Name)
		isDir := statErr == nil && info.IsDir()
		if isDir {
			_ = w.addRecursive(event.Name)
		}

		w.mu.Lock()
		from, ok := w.tracker.created(rel, isDir, at)
		w.mu.Unlock()

		if ok {
			w.emitRename(from.rel, rel, isDir)
			return
		}
		if !isDir {
			w.emitChange(rel)
		}

	case event.Op&(fsnotify.Write|fsnotify.Remove) != 0:
		if event.Op&fsnotify.Remove != 0 {
			w.mu.Lock()
			if _, isDir := w.dirs[rel]; isDir {
				w.forgetDir(rel)
			}
			w.mu.Unlock()
		}
		w.emitChange(rel)
	}
}

// expire reports renames whose Create never arrived as removals.
func (w *VaultWatcher) expire(at time.Time) {
	w.mu.Lock()
	gone := w.tracker.expire(at)
	w.mu.Unlock()

	for _, p := range gone {
		if !p.isDir {
			w.emitChange(p.rel)
		}
	}
}

func (w *VaultWatcher) emitChange(rel string) {
	if !w.isRelevant(rel) {
		return
	}
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(rel)
	}
}

func (w *VaultWatcher) emitRename(oldRel, newRel string, isDir bool) {
	if !isDir && !w.isRelevant(oldRel) && !w.isRelevant(newRel) {
		return
	}
	w.log.Debug("vault move", zap.String("from", oldRel), zap.String("to", newRel), zap.Bool("dir", isDir))

	w.mu.Lock()
	fn := w.onRename
	w.mu.Unlock()
	if fn != nil {
		fn(oldRel, newRel, isDir)
		return
	}
	if !isDir {
		w.emitChange(oldRel)
		w.emitChange(newRel)
	}
}

func (w *VaultWatcher) Close() error {
	if w == nil {
		return nil
	}

	var closeErr error
	w.once.Do(func() {
		close(w.done)
		closeErr = w.watcher.Close()
		w.mu.Lock()
		fn := w.onClose
		w.mu.Unlock()
		if fn != nil {
			fn()
		}
	})

	return closeErr
}

// OnChange registers a callback that receives relative paths of created,
// written or removed notes and documents.
func (w *VaultWatcher) OnChange(fn func(string)) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// OnRename registers a callback for moves. Without one, file moves are
// reported to OnChange as a removal and a creation.
func (w *VaultWatcher) OnRename(fn func(oldRel, newRel string, isDir bool)) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.onRename = fn
	w.mu.Unlock()
}

// OnClose registers a callback that is invoked exactly once when the watcher
// shuts down.
func (w *VaultWatcher) OnClose(fn func()) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.onClose = fn
	w.mu.Unlock()
}

func (w *VaultWatcher) addRecursive(root string) error {
	normalized := pathutil.NormalizePath(root)
	return filepath.WalkDir(normalized, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return filepath.SkipDir
			}
			return err
		}

		if !d.IsDir() {
			return nil
		}

		rel, _ := w.relativePath(p)
		if rel != "" && hiddenPath(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return err
		}
		if rel != "" {
			w.mu.Lock()
			w.dirs[rel] = struct{}{}
			w.mu.Unlock()
		}
		return nil
	})
}

// forgetDir drops rel and its subdirectories. Callers hold w.mu.
func (w *VaultWatcher) forgetDir(rel string) {
	for dir := range w.dirs {
		if _, below := pathutil.HasPathPrefix(dir, rel); below || dir == rel {
			delete(w.dirs, dir)
		}
	}
}

func (w *VaultWatcher) isRelevant(rel string) bool {
	_, ok := w.exts[strings.ToLower(path.Ext(rel))]
	return ok
}

func (w *VaultWatcher) relativePath(p string) (string, error) {
	normalized := pathutil.NormalizePath(p)
	rel, err := pathutil.VaultRelative(w.vault, normalized)
	if err != nil {
		return "", err
	}

	if rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return "", nil
	}

	return rel, nil
}

func hiddenPath(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

type pendingRename struct {
	rel   string
	isDir bool
	at    time.Time
}

// renameTracker pairs a Rename event with the Create that follows it.
type renameTracker struct {
	window  time.Duration
	pending []pendingRename
}

func (t *renameTracker) renamed(rel string, isDir bool, at time.Time) {
	t.pending = append(t.pending, pendingRename{rel: rel, isDir: isDir, at: at})
}

// created returns the rename that rel completes. A pending rename with the
// same base name is a move and wins. Otherwise only the oldest rename in the
// same folder pairs, since a name change never changes the folder.
func (t *renameTracker) created(rel string, isDir bool, at time.Time) (pendingRename, bool) {
	match := -1
	for i, p := range t.pending {
		if at.Sub(p.at) > t.window || p.isDir != isDir || p.rel == rel {
			continue
		}
		if path.Base(p.rel) == path.Base(rel) {
			match = i
			break
		}
		if match < 0 && path.Dir(p.rel) == path.Dir(rel) {
			match = i
		}
	}
	if match < 0 {
		return pendingRename{}, false
	}

	found := t.pending[match]
	t.pending = append(t.pending[:match], t.pending[match+1:]...)
	return found, true
}

// expire removes and returns renames older than the window.
func (t *renameTracker) expire(at time.Time) []pendingRename {
	var gone []pendingRename
	kept := t.pending[:0]
	for _, p := range t.pending {
		if at.Sub(p.at) >= t.window {
			gone = append(gone, p)
			continue
		}
		kept = append(kept, p)
	}
	t.pending = kept
	return gone
}

// next is the earliest expiry among pending renames.
func (t *renameTracker) next() (time.Time, bool) {
	if len(t.pending) == 0 {
		return time.Time{}, false
	}
	earliest := t.pending[0].at
	for _, p := range t.pending[1:] {
		if p.at.Before(earliest) {
			earliest = p.at
		}
	}
	return earliest.Add(t.window), true
}
