package nettle

import (
	"sync"
	"testing"
)

func TestAttributeMapGetSetRoundTrip(t *testing.T) {
	m := &AttributeMap{}
	key := NewAttributeKey[string]("greeting")

	if _, ok := Get(m, key); ok {
		t.Fatal("Get on an empty map should report absence")
	}
	Set(m, key, "hello")
	got, ok := Get(m, key)
	if !ok || got != "hello" {
		t.Fatalf("Get() = (%q, %v), want (%q, true)", got, ok, "hello")
	}
	Remove(m, key)
	if _, ok := Get(m, key); ok {
		t.Fatal("Get after Remove should report absence")
	}
}

func TestAttributeKeysAreDistinctByIdentity(t *testing.T) {
	m := &AttributeMap{}
	k1 := NewAttributeKey[int]("same-name")
	k2 := NewAttributeKey[int]("same-name")

	Set(m, k1, 1)
	Set(m, k2, 2)

	v1, _ := Get(m, k1)
	v2, _ := Get(m, k2)
	if v1 != 1 || v2 != 2 {
		t.Fatalf("keys with the same name collided: got %d and %d", v1, v2)
	}
}

func TestAttributeMapGetOrSetReturnsFirstStoredValue(t *testing.T) {
	m := &AttributeMap{}
	key := NewAttributeKey[int]("counter")

	if got := GetOrSet(m, key, 7); got != 7 {
		t.Fatalf("first GetOrSet = %d, want 7", got)
	}
	if got := GetOrSet(m, key, 99); got != 7 {
		t.Fatalf("second GetOrSet = %d, want the original 7", got)
	}
}

func TestAttributeMapConcurrentAccess(t *testing.T) {
	m := &AttributeMap{}
	key := NewAttributeKey[int]("shared")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			Set(m, key, i)
			Get(m, key)
		}(i)
	}
	wg.Wait()

	if _, ok := Get(m, key); !ok {
		t.Fatal("value should remain present after concurrent writes")
	}
}
