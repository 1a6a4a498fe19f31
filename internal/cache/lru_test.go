package cache

import (
	"reflect"
	"testing"
)

func TestLRUSetGetPromotes(t *testing.T) {
	c := NewLRU[int](4)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if got := c.Get("a"); got != 1 {
		t.Fatalf("Get(a) = %d, want 1", got)
	}

	// a was just used, so the oldest is now b.
	if got := c.PeekLastKey(); got != "b" {
		t.Errorf("PeekLastKey() = %q, want %q", got, "b")
	}
	if got := c.PeekFirstKey(); got != "a" {
		t.Errorf("PeekFirstKey() = %q, want %q", got, "a")
	}
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"a", "c", "b"}) {
		t.Errorf("Keys() = %v, want [a c b]", got)
	}
}

func TestLRUPeekDoesNotPromote(t *testing.T) {
	c := NewLRU[int](4)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Peek("a"); !ok || v != 1 {
		t.Fatalf("Peek(a) = %d, %v, want 1, true", v, ok)
	}
	if got := c.PeekLastKey(); got != "a" {
		t.Errorf("PeekLastKey() = %q after Peek, want %q", got, "a")
	}
	if _, ok := c.Peek("missing"); ok {
		t.Error("Peek(missing) reported ok")
	}
}

func TestLRUPopRemovesOldest(t *testing.T) {
	c := NewLRU[int](4)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Get("a")

	if got := c.Pop(); got != 2 {
		t.Fatalf("Pop() = %d, want 2 (oldest)", got)
	}
	if c.Contains("b") {
		t.Error("Contains(b) = true after Pop")
	}
	if got := c.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestLRURemoveAndReplace(t *testing.T) {
	c := NewLRU[string](4)
	c.Set("a", "one")
	c.Set("b", "two")
	c.Set("c", "three")

	if got := c.Remove("b"); got != "two" {
		t.Fatalf("Remove(b) = %q, want %q", got, "two")
	}
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"c", "a"}) {
		t.Errorf("Keys() = %v, want [c a]", got)
	}

	c.Replace("a", "uno")
	if got := c.Get("a"); got != "uno" {
		t.Errorf("Get(a) = %q after Replace, want %q", got, "uno")
	}
}

func TestLRUPanicsOnContractViolations(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic", name)
				}
			}()
			fn()
		})
	}

	c := NewLRU[int](4)
	c.Set("a", 1)

	mustPanic("duplicate set", func() { c.Set("a", 2) })
	mustPanic("get missing", func() { c.Get("missing") })
	mustPanic("remove missing", func() { c.Remove("missing") })
	mustPanic("replace missing", func() { c.Replace("missing", 0) })

	empty := NewLRU[int](4)
	mustPanic("pop empty", func() { empty.Pop() })
	mustPanic("peek last empty", func() { empty.PeekLast() })
	mustPanic("peek first key empty", func() { empty.PeekFirstKey() })
}

func TestLRUPruneToHighWaterMark(t *testing.T) {
	c := NewLRU[int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Set("d", 4)

	if !c.CanExpireCache() {
		t.Fatal("CanExpireCache() = false with 4 entries over mark 2")
	}

	var dropped []int
	c.Prune(func(v int) { dropped = append(dropped, v) })

	if got := c.Count(); got != 2 {
		t.Errorf("Count() = %d after Prune, want 2", got)
	}
	if !reflect.DeepEqual(dropped, []int{1, 2}) {
		t.Errorf("dropped = %v, want [1 2] (oldest first)", dropped)
	}
	if c.CanExpireCache() {
		t.Error("CanExpireCache() = true after Prune")
	}
}

func TestLRUDefaultHighWaterMark(t *testing.T) {
	c := NewLRU[int](0)
	if got := c.HighWaterMark(); got != DefaultHighWaterMark {
		t.Errorf("HighWaterMark() = %d, want %d", got, DefaultHighWaterMark)
	}
}

func TestLRUForEachOldestFirst(t *testing.T) {
	c := NewLRU[int](4)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Get("b")

	var order []string
	c.ForEach(func(key string, _ int) { order = append(order, key) })
	if !reflect.DeepEqual(order, []string{"a", "c", "b"}) {
		t.Errorf("ForEach order = %v, want [a c b]", order)
	}
}

func TestLRUClear(t *testing.T) {
	c := NewLRU[int](4)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if got := c.Count(); got != 0 {
		t.Errorf("Count() = %d after Clear, want 0", got)
	}
	// The same keys must be insertable again.
	c.Set("a", 10)
	if got := c.Get("a"); got != 10 {
		t.Errorf("Get(a) = %d, want 10", got)
	}
}
