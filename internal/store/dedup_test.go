package store

import (
	"fmt"
	"testing"
)

func TestImportDedup_AddHas(t *testing.T) {
	dedup := NewImportDedup(100, 0.001)

	uri := "spotify:track:4u7EnebtmKWzUH433cf5Qv"
	if dedup.Has(uri) {
		t.Error("Has() true before Add()")
	}

	dedup.Add(uri)
	if !dedup.Has(uri) {
		t.Error("Has() false after Add()")
	}
	if dedup.Size() != 1 {
		t.Errorf("Size() = %d, want 1", dedup.Size())
	}

	dedup.Add(uri)
	if dedup.Size() != 1 {
		t.Errorf("Size() after duplicate Add() = %d, want 1", dedup.Size())
	}
}

func TestImportDedup_NonPositiveSizingUsesDefaults(t *testing.T) {
	dedup := NewImportDedup(0, 0)

	dedup.Add("spotify:track:a")
	if !dedup.Has("spotify:track:a") {
		t.Error("Has() false after Add() with defaulted sizing")
	}
	if dedup.Size() != 1 {
		t.Errorf("Size() = %d, want 1", dedup.Size())
	}
}

func TestImportDedup_EvictsOldest(t *testing.T) {
	dedup := NewImportDedup(3, 0.001)

	for i := 0; i < 5; i++ {
		dedup.Add(fmt.Sprintf("spotify:track:%d", i))
	}

	if dedup.Size() != 3 {
		t.Errorf("Size() = %d, want 3", dedup.Size())
	}
	if dedup.Has("spotify:track:0") {
		t.Error("oldest URI not evicted")
	}
	if !dedup.Has("spotify:track:4") {
		t.Error("newest URI missing")
	}
}

func TestImportDedup_Load(t *testing.T) {
	dedup := NewImportDedup(100, 0.001)
	dedup.Add("spotify:track:old")

	dedup.Load([]string{"spotify:track:a", "spotify:track:b", ""})

	if dedup.Has("spotify:track:old") {
		t.Error("Load() did not clear prior contents")
	}
	if !dedup.Has("spotify:track:a") || !dedup.Has("spotify:track:b") {
		t.Error("Load() missed seeded URIs")
	}
	if dedup.Size() != 2 {
		t.Errorf("Size() = %d, want 2 (empty URI skipped)", dedup.Size())
	}
}
