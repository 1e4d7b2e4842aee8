// Package reader ties one open document to its backlinks, highlights, jumps
// and saved position.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/backlinks"
	"github.com/Paintersrp/ebref/internal/debounce"
	"github.com/Paintersrp/ebref/internal/highlight"
	"github.com/Paintersrp/ebref/internal/jump"
	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/progress"
	"github.com/Paintersrp/ebref/internal/rangeref"
	"github.com/Paintersrp/ebref/internal/storage"
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("reader session closed")
	// ErrNotReference is returned for link text that carries no range reference.
	ErrNotReference = errors.New("link is not a range reference")
	// ErrOtherDocument is returned for references to a different document.
	ErrOtherDocument = errors.New("reference points at another document")
)

// Renderer is everything the session needs from a rendering surface.
type Renderer interface {
	jump.Navigator
	highlight.Surface
}

// IndexSource yields the current note link index.
type IndexSource interface {
	NoteIndex() (backlinks.NoteIndex, error)
}

// Config tunes a session. Zero values fall back to defaults.
type Config struct {
	Document          string
	HighlightsEnabled bool
	MaxHighlights     int
	BacklinkLimit     int
	RefreshDelay      time.Duration
	// OnActivate runs when the user activates a highlight.
	OnActivate func(backlinks.Descriptor)
}

// ConfigFromSettings builds a session config from persisted settings.
func ConfigFromSettings(document string, s storage.Settings) Config {
	return Config{
		Document:          document,
		HighlightsEnabled: s.HighlightsEnabled,
		MaxHighlights:     s.MaxHighlights,
		BacklinkLimit:     s.BacklinkLimit,
		RefreshDelay:      time.Duration(s.RefreshDebounceMs) * time.Millisecond,
	}
}

// Session is the state of one open document. Entry points are serialized, and
// results that arrive after Close are discarded.
type Session struct {
	id       string
	document string
	cfg      Config

	renderer   Renderer
	index      IndexSource
	store      *progress.Store
	resolver   *backlinks.Resolver
	reconciler *highlight.Reconciler
	jumps      *jump.Controller
	refresh    *debounce.Debouncer
	log        *zap.Logger

	mu          sync.Mutex
	alive       bool
	current     []backlinks.Descriptor
	fingerprint string
	refreshed   bool
}

// NewSession prepares a session. store may be nil when positions should not
// be remembered.
func NewSession(renderer Renderer, index IndexSource, store *progress.Store, cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = 300 * time.Millisecond
	}
	if cfg.BacklinkLimit <= 0 {
		cfg.BacklinkLimit = backlinks.DefaultLimit
	}
	if cfg.MaxHighlights <= 0 {
		cfg.MaxHighlights = highlight.DefaultMax
	}

	id := uuid.NewString()
	log = log.With(zap.String("session", id), zap.String("document", cfg.Document))

	s := &Session{
		id:       id,
		document: pathutil.NormalizeKey(cfg.Document),
		cfg:      cfg,
		renderer: renderer,
		index:    index,
		store:    store,
		resolver: backlinks.NewResolver(log),
		jumps:    jump.NewController(log),
		refresh:  debounce.New(cfg.RefreshDelay),
		log:      log,
		alive:    true,
	}
	s.reconciler = highlight.NewReconciler(
		highlight.WithMax(cfg.MaxHighlights),
		highlight.WithLogger(log),
		highlight.WithActivate(s.activate),
	)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Document is the normalized path of the open document.
func (s *Session) Document() string {
	return s.document
}

// Start applies the initial highlights, then either consumes a pending jump
// or restores the saved position.
func (s *Session) Start(ctx context.Context) error {
	if !s.isAlive() {
		return ErrClosed
	}

	s.Refresh(ctx)

	if state, _ := s.jumps.State(); state == jump.PendingJump {
		outcome := s.jumps.Consume(ctx, s.renderer)
		s.log.Debug("initial jump", zap.Stringer("outcome", outcome))
		return nil
	}

	s.restore(ctx)
	return nil
}

// Refresh resolves backlinks, waits for the surface to be ready and reconciles
// highlights when the set changed. It returns the number of highlights on the
// surface.
func (s *Session) Refresh(ctx context.Context) int {
	if !s.isAlive() {
		return 0
	}

	descriptors := s.resolve(ctx)
	fp := highlight.Fingerprint(descriptors)

	// Highlights are only applied to a surface that finished loading.
	if err := s.renderer.Ready(ctx); err != nil {
		s.log.Warn("surface not ready, reconciling anyway", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive {
		return 0
	}
	if s.refreshed && fp == s.fingerprint {
		return len(s.reconciler.Active())
	}

	s.refreshed = true
	s.fingerprint = fp
	s.current = descriptors
	return s.reconciler.Reconcile(s.renderer, descriptors)
}

// IndexChanged schedules a debounced refresh.
func (s *Session) IndexChanged() {
	if !s.isAlive() {
		return
	}
	s.refresh.Trigger(func() {
		s.Refresh(context.Background())
	})
}

// ContentRendered re-applies the current highlights after the renderer laid
// out new content.
func (s *Session) ContentRendered() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive || !s.refreshed {
		return
	}
	s.reconciler.Reconcile(s.renderer, s.current)
}

// Relocated records the viewer position.
func (s *Session) Relocated(position string) {
	if !s.isAlive() || s.store == nil || position == "" {
		return
	}
	s.store.Set(s.document, storage.StringPosition(position))
}

// RequestJump queues a jump for the next Start or Consume.
func (s *Session) RequestJump(target string) {
	s.jumps.Request(target)
}

// Jump moves the surface to target.
func (s *Session) Jump(ctx context.Context, target string) jump.Outcome {
	if !s.isAlive() {
		return jump.NoRequest
	}
	return s.jumps.Jump(ctx, s.renderer, target)
}

// JumpToLink parses raw link text and jumps to the referenced range.
func (s *Session) JumpToLink(ctx context.Context, raw string) (jump.Outcome, error) {
	rng, err := s.rangeFromLink(raw)
	if err != nil {
		return jump.NoRequest, err
	}
	return s.Jump(ctx, rng), nil
}

// RequestLink queues a jump to the range referenced by raw link text.
func (s *Session) RequestLink(raw string) error {
	rng, err := s.rangeFromLink(raw)
	if err != nil {
		return err
	}
	s.RequestJump(rng)
	return nil
}

// Highlights returns the descriptors of the last applied set.
func (s *Session) Highlights() []backlinks.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backlinks.Descriptor(nil), s.current...)
}

// Active lists the ranges materialized on the surface.
func (s *Session) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Active()
}

// Close tears the session down. Pending refreshes are discarded.
func (s *Session) Close() error {
	s.refresh.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive {
		return nil
	}
	s.alive = false
	s.reconciler.Clear(s.renderer)
	s.current = nil
	return nil
}

func (s *Session) resolve(ctx context.Context) []backlinks.Descriptor {
	if !s.cfg.HighlightsEnabled || ctx.Err() != nil {
		return nil
	}

	idx, err := s.index.NoteIndex()
	if err != nil {
		s.log.Debug("note index unavailable", zap.Error(err))
		return nil
	}
	return s.resolver.Resolve(s.document, idx, s.cfg.BacklinkLimit)
}

func (s *Session) restore(ctx context.Context) {
	if s.store == nil {
		return
	}
	pos, ok := s.store.Get(s.document)
	if !ok || pos.IsNumber() || pos.IsZero() {
		return
	}

	if err := s.renderer.Ready(ctx); err != nil {
		s.log.Debug("renderer not ready for restore", zap.Error(err))
	}
	if err := s.renderer.Display(ctx, pos.String()); err != nil {
		s.log.Debug("saved position rejected", zap.String("position", pos.String()), zap.Error(err))
	}
}

func (s *Session) rangeFromLink(raw string) (string, error) {
	ref, ok := rangeref.Parse(raw)
	if !ok {
		return "", ErrNotReference
	}
	if ref.Path != s.document {
		return "", fmt.Errorf("%w: %s", ErrOtherDocument, ref.Path)
	}
	rng, err := rangeref.Decode(ref.Token)
	if err != nil {
		return "", err
	}
	return rng, nil
}

func (s *Session) activate(d backlinks.Descriptor) {
	if !s.isAlive() {
		return
	}
	s.log.Info("highlight activated", zap.String("label", d.Label), zap.String("note", d.SourceNote))
	if s.cfg.OnActivate != nil {
		s.cfg.OnActivate(d)
	}
}

func (s *Session) isAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}
