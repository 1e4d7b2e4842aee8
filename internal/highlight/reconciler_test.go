package highlight

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/Paintersrp/ebref/internal/backlinks"
)

type fakeSurface struct {
	annotations map[string]func()
	adds        int
	rejectAdd   map[string]bool
	rejectAll   bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{annotations: make(map[string]func()), rejectAdd: make(map[string]bool)}
}

func (f *fakeSurface) AddAnnotation(rng string, onActivate func()) error {
	if f.rejectAdd[rng] {
		return errors.New("unrenderable range")
	}
	if _, exists := f.annotations[rng]; exists {
		return fmt.Errorf("duplicate annotation %s", rng)
	}
	f.adds++
	f.annotations[rng] = onActivate
	return nil
}

func (f *fakeSurface) RemoveAnnotation(rng string) error {
	if f.rejectAll {
		delete(f.annotations, rng)
		return errors.New("stale range")
	}
	if _, ok := f.annotations[rng]; !ok {
		return errors.New("no such annotation")
	}
	delete(f.annotations, rng)
	return nil
}

func descriptors(n int) []backlinks.Descriptor {
	out := make([]backlinks.Descriptor, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, backlinks.Descriptor{
			Range:      fmt.Sprintf("epubcfi(/6/2!/4,/1:%d,/1:%d)", i, i+1),
			SourceNote: fmt.Sprintf("note-%d.md", i),
			Label:      fmt.Sprintf("label %d", i),
		})
	}
	return out
}

func TestReconcileIsIdempotent(t *testing.T) {
	surface := newFakeSurface()
	r := NewReconciler(WithLogger(zaptest.NewLogger(t)))
	d := descriptors(5)

	if got := r.Reconcile(surface, d); got != 5 {
		t.Fatalf("expected 5 annotations, got %d", got)
	}
	if got := r.Reconcile(surface, d); got != 5 {
		t.Fatalf("expected 5 annotations on second pass, got %d", got)
	}

	if len(surface.annotations) != 5 {
		t.Fatalf("expected exactly 5 annotations on the surface, got %d", len(surface.annotations))
	}
	if len(r.Active()) != 5 {
		t.Fatalf("expected active set of 5, got %v", r.Active())
	}
}

func TestReconcileCapsAtEighty(t *testing.T) {
	surface := newFakeSurface()
	r := NewReconciler()

	if got := r.Reconcile(surface, descriptors(100)); got != DefaultMax {
		t.Fatalf("expected %d annotations, got %d", DefaultMax, got)
	}
	if len(surface.annotations) != DefaultMax {
		t.Fatalf("expected %d annotations on the surface, got %d", DefaultMax, len(surface.annotations))
	}
}

func TestReconcileSkipsRejectedRanges(t *testing.T) {
	surface := newFakeSurface()
	d := descriptors(4)
	surface.rejectAdd[d[1].Range] = true

	r := NewReconciler()
	if got := r.Reconcile(surface, d); got != 3 {
		t.Fatalf("expected bad range to be skipped, got %d annotations", got)
	}
	for _, rng := range r.Active() {
		if rng == d[1].Range {
			t.Fatalf("rejected range should not be active")
		}
	}
}

func TestReconcileToleratesRemovalFailures(t *testing.T) {
	surface := newFakeSurface()
	r := NewReconciler()
	r.Reconcile(surface, descriptors(3))

	surface.rejectAll = true
	next := descriptors(6)[3:]
	if got := r.Reconcile(surface, next); got != 3 {
		t.Fatalf("expected new set to be applied despite removal errors, got %d", got)
	}

	want := map[string]bool{}
	for _, d := range next {
		want[d.Range] = true
	}
	for rng := range surface.annotations {
		if !want[rng] {
			t.Fatalf("unexpected leftover annotation %s", rng)
		}
	}
}

func TestReconcileSkipsDuplicateRanges(t *testing.T) {
	surface := newFakeSurface()
	d := descriptors(2)
	d = append(d, backlinks.Descriptor{Range: d[0].Range, SourceNote: "other.md", Label: "again"})

	r := NewReconciler()
	if got := r.Reconcile(surface, d); got != 2 {
		t.Fatalf("expected duplicate range to be added once, got %d", got)
	}
	if surface.adds != 2 {
		t.Fatalf("expected two add calls, got %d", surface.adds)
	}
}

func TestActivationReportsDescriptor(t *testing.T) {
	surface := newFakeSurface()
	var activated backlinks.Descriptor
	r := NewReconciler(WithActivate(func(d backlinks.Descriptor) { activated = d }))

	d := descriptors(2)
	r.Reconcile(surface, d)
	surface.annotations[d[1].Range]()

	if activated != d[1] {
		t.Fatalf("expected activation of %+v, got %+v", d[1], activated)
	}
}

func TestFingerprintIgnoresOrder(t *testing.T) {
	d := descriptors(3)
	reversed := []backlinks.Descriptor{d[2], d[1], d[0]}

	if Fingerprint(d) != Fingerprint(reversed) {
		t.Fatalf("expected fingerprint to be order independent")
	}
	if Fingerprint(d) == Fingerprint(d[:2]) {
		t.Fatalf("expected different sets to differ")
	}
	if Fingerprint(nil) != Fingerprint([]backlinks.Descriptor{}) {
		t.Fatalf("expected empty sets to share a fingerprint")
	}
}
