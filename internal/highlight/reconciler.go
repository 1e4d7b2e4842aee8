// Package highlight keeps a rendering surface's annotations in line with the
// backlinks of the open document.
package highlight

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/backlinks"
)

// DefaultMax caps how many annotations a single reconcile materializes.
const DefaultMax = 80

// Surface is the annotation half of the renderer contract.
type Surface interface {
	AddAnnotation(rng string, onActivate func()) error
	RemoveAnnotation(rng string) error
}

// Reconciler owns the set of ranges currently annotated on a surface.
type Reconciler struct {
	max      int
	active   []string
	activate func(backlinks.Descriptor)
	log      *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMax overrides DefaultMax. Values below one are ignored.
func WithMax(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.max = n
		}
	}
}

// WithActivate sets the handler invoked when the user activates a highlight.
func WithActivate(fn func(backlinks.Descriptor)) Option {
	return func(r *Reconciler) {
		r.activate = fn
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// NewReconciler constructs a reconciler with an empty active set.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{max: DefaultMax, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile clears every active annotation from surface and adds the first
// max descriptors. Failures on individual ranges are skipped. The number of
// annotations materialized is returned.
func (r *Reconciler) Reconcile(surface Surface, descriptors []backlinks.Descriptor) int {
	for _, rng := range r.active {
		if err := surface.RemoveAnnotation(rng); err != nil {
			r.log.Debug("stale annotation not removed", zap.String("range", rng), zap.Error(err))
		}
	}
	r.active = r.active[:0]

	limit := len(descriptors)
	if limit > r.max {
		limit = r.max
	}

	added := make(map[string]struct{}, limit)
	for _, d := range descriptors[:limit] {
		if _, dup := added[d.Range]; dup {
			continue
		}

		desc := d
		err := surface.AddAnnotation(desc.Range, func() {
			if r.activate != nil {
				r.activate(desc)
			}
		})
		if err != nil {
			r.log.Debug("annotation rejected", zap.String("range", desc.Range), zap.Error(err))
			continue
		}

		added[desc.Range] = struct{}{}
		r.active = append(r.active, desc.Range)
	}

	return len(r.active)
}

// Clear removes every active annotation.
func (r *Reconciler) Clear(surface Surface) {
	r.Reconcile(surface, nil)
}

// Active lists the ranges currently materialized.
func (r *Reconciler) Active() []string {
	return append([]string(nil), r.active...)
}

// Fingerprint derives an order-independent key for a descriptor set.
func Fingerprint(descriptors []backlinks.Descriptor) string {
	lines := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		lines = append(lines, d.Range+"\x00"+d.SourceNote+"\x00"+d.Label)
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
