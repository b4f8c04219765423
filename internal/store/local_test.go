package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "mentor.db"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKeyValueRoundTrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetValue("missing")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != "" {
		t.Errorf("missing key should return empty string, got %q", v)
	}

	if err := s.SetValue("k", "v1"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := s.SetValue("k", "v2"); err != nil {
		t.Fatalf("SetValue overwrite: %v", err)
	}
	v, _ = s.GetValue("k")
	if v != "v2" {
		t.Errorf("got %q, want v2", v)
	}
}

func TestIntAndJSONHelpers(t *testing.T) {
	s := newTestStore(t)

	n, err := s.GetInt("count")
	if err != nil || n != 0 {
		t.Fatalf("absent int = %d, %v; want 0, nil", n, err)
	}
	if err := s.SetInt("count", 7); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	n, _ = s.GetInt("count")
	if n != 7 {
		t.Errorf("got %d, want 7", n)
	}

	history := []float64{0.2, 0.8}
	if err := s.SetJSON("history", history); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var loaded []float64
	ok, err := s.GetJSON("history", &loaded)
	if err != nil || !ok {
		t.Fatalf("GetJSON: ok=%v err=%v", ok, err)
	}
	if len(loaded) != 2 || loaded[1] != 0.8 {
		t.Errorf("got %v, want %v", loaded, history)
	}

	var untouched []float64
	ok, err = s.GetJSON("absent", &untouched)
	if err != nil || ok {
		t.Errorf("absent JSON: ok=%v err=%v; want false, nil", ok, err)
	}
}

func TestClientIDStable(t *testing.T) {
	s := newTestStore(t)

	first, err := s.ClientID()
	if err != nil {
		t.Fatalf("ClientID: %v", err)
	}
	if first == "" {
		t.Fatal("client id should not be empty")
	}
	second, _ := s.ClientID()
	if second != first {
		t.Errorf("client id changed between calls: %q != %q", first, second)
	}
}

func TestNoveltyNearest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.NearestNovelty(ctx, []float32{1, 0})
	if err != nil {
		t.Fatalf("NearestNovelty on empty index: %v", err)
	}
	if found {
		t.Fatal("empty index should report no match")
	}

	if err := s.AppendNovelty(ctx, "use a loop here", []float32{1, 0}); err != nil {
		t.Fatalf("AppendNovelty: %v", err)
	}
	if err := s.AppendNovelty(ctx, "name your variables", []float32{0, 1}); err != nil {
		t.Fatalf("AppendNovelty: %v", err)
	}

	match, found, err := s.NearestNovelty(ctx, []float32{0.9, 0.1})
	if err != nil || !found {
		t.Fatalf("NearestNovelty: found=%v err=%v", found, err)
	}
	if match.Remark != "use a loop here" {
		t.Errorf("nearest remark = %q, want the loop remark", match.Remark)
	}

	count, err := s.NoveltyCount()
	if err != nil || count != 2 {
		t.Errorf("NoveltyCount = %d, %v; want 2", count, err)
	}
}

func TestNoveltySkipsMismatchedDimensions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendNovelty(ctx, "three dims", []float32{1, 0, 0}); err != nil {
		t.Fatalf("AppendNovelty: %v", err)
	}

	_, found, err := s.NearestNovelty(ctx, []float32{1, 0})
	if err != nil {
		t.Fatalf("NearestNovelty: %v", err)
	}
	if found {
		t.Error("mismatched-dimension entries should be skipped")
	}
}
