package expr

import "testing"

func TestLinkedMapUpdateShadowsOnlyTargetKey(t *testing.T) {
	base := NewMap(map[string]Value{"a": Number(1), "b": Number(2)})
	updated := base.Update("a", Number(99))

	v, ok := updated.Find("a")
	if !ok || v.(*NumberValue).V != 99 {
		t.Fatalf("expected updated binding for a")
	}
	v, ok = updated.Find("b")
	if !ok || v.(*NumberValue).V != 2 {
		t.Fatalf("expected base binding for b to be preserved")
	}
}

func TestLinkedMapItemsSortedAndShadowed(t *testing.T) {
	base := NewMap(map[string]Value{"z": Number(1), "a": Number(2), "m": Number(3)})
	chained := base.Update("a", Number(100)).Update("q", Number(4))

	items := chained.Items()
	for i := 1; i < len(items); i++ {
		if items[i-1].Key >= items[i].Key {
			t.Fatalf("items not strictly sorted at %d: %q >= %q", i, items[i-1].Key, items[i].Key)
		}
	}
	a, _ := chained.Find("a")
	if a.(*NumberValue).V != 100 {
		t.Fatalf("expected shadowed value for a")
	}
}

func TestLinkedMapSizeMatchesItems(t *testing.T) {
	m := EmptyMap().Update("a", Number(1)).Update("b", Number(2)).Update("a", Number(3))
	if m.Size() != len(m.Items()) {
		t.Fatalf("size/items mismatch")
	}
	if m.Size() != 2 {
		t.Fatalf("expected 2 distinct keys after shadowing, got %d", m.Size())
	}
}

func TestLinkedMapEqualityIgnoresConstructionHistory(t *testing.T) {
	a := NewMap(map[string]Value{"a": Number(1), "b": Number(2)})
	b := EmptyMap().Update("a", Number(1)).Update("b", Number(2))
	if !a.Equal(b) {
		t.Fatalf("expected equal maps regardless of construction shape")
	}
}

func TestEmptyMapsEqualRegardlessOfHistory(t *testing.T) {
	a := EmptyMap()
	b := EmptyMap().Update("x", Number(1))
	c, _ := b.At("x")
	_ = c
	empty2 := NewMap(map[string]Value{})
	if !a.Equal(empty2) {
		t.Fatalf("two empty maps must compare equal")
	}
}

func TestFindConflictingDuplicate(t *testing.T) {
	a := NewMap(map[string]Value{"x": Number(1), "y": Number(2)})
	b := NewMap(map[string]Value{"x": Number(1), "y": Number(99)})
	key, found := a.FindConflictingDuplicate(b)
	if !found || key != "y" {
		t.Fatalf("expected conflicting duplicate on key y, got %q found=%v", key, found)
	}

	c := NewMap(map[string]Value{"x": Number(1), "y": Number(2)})
	_, found = a.FindConflictingDuplicate(c)
	if found {
		t.Fatalf("matching-valued duplicates must not be conflicts")
	}
}

func TestAtSignalsMissingKey(t *testing.T) {
	m := NewMap(map[string]Value{"a": Number(1)})
	if _, err := m.At("a"); err != nil {
		t.Fatalf("unexpected error for present key: %v", err)
	}
	if _, err := m.At("missing"); err == nil {
		t.Fatalf("expected out-of-range error for missing key")
	}
}

func TestHashStabilityAcrossShadowShapes(t *testing.T) {
	single := MapFromGo(map[string]Value{"a": Number(1), "b": Number(2)})
	shadowed := Map(EmptyMap().Update("a", Number(1)).Update("b", Number(2)))
	if single.ToHash() != shadowed.ToHash() {
		t.Fatalf("expected identical hashes for identical sorted items regardless of shape")
	}
}
