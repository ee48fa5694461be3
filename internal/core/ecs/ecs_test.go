package ecs

import "testing"

func TestEntityPoolGenerations(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	if a.IsZero() || a.Index() == 0 {
		t.Fatalf("first entity must not use slot 0: %v", a)
	}
	p.Destroy(a)
	if p.Alive(a) {
		t.Fatalf("destroyed entity still alive")
	}
	b := p.Create()
	if b.Index() != a.Index() || b.Generation() == a.Generation() {
		t.Fatalf("expected slot reuse with new generation: a=%v b=%v", a, b)
	}
	if p.Alive(a) || !p.Alive(b) {
		t.Fatalf("stale handle must not alias new entity")
	}
	p.Destroy(a) // stale, no-op
	if !p.Alive(b) || p.Live() != 1 {
		t.Fatalf("stale destroy must not affect live entity (live=%d)", p.Live())
	}
}

func TestWorldDeferredDestroy(t *testing.T) {
	w := NewWorld()
	store := NewPtrComponentStore[int]()
	w.Registry().Register(store)

	id := w.CreateEntity()
	v := 5
	store.Set(id, &v)

	w.MarkForDestruction(id)
	if !w.Alive(id) || !store.Has(id) {
		t.Fatalf("entity must survive until the queue is flushed")
	}
	if n := w.FlushDestroyQueue(); n != 1 {
		t.Fatalf("flushed %d", n)
	}
	if w.Alive(id) || store.Has(id) {
		t.Fatalf("entity should be gone after flush")
	}
}

func TestStoreValues(t *testing.T) {
	s := NewPtrComponentStore[string]()
	a, b := "a", "b"
	s.Set(NewEntityID(1, 0), &a)
	s.Set(NewEntityID(2, 0), &b)
	if got := len(s.Values()); got != 2 {
		t.Fatalf("values = %d", got)
	}
}
