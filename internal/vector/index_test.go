package vector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func seed(t *testing.T, x *Index) {
	t.Helper()
	ctx := context.Background()
	vecs := []struct {
		content string
		vec     []float32
	}{
		{"alpha", []float32{1, 0, 0}},
		{"almost alpha", []float32{0.9, 0.1, 0}},
		{"beta", []float32{0, 1, 0}},
		{"gamma", []float32{0, 0, 3}},
		{"alpha again", []float32{2, 0, 0}},
	}
	for i, v := range vecs {
		if err := x.Add(ctx, Entry{ID: int64(i + 1), Content: v.content, Category: "general"}, v.vec); err != nil {
			t.Fatalf("Add(%s) failed: %v", v.content, err)
		}
	}
}

func TestIndex_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	x, res := Open(t.TempDir())
	if res.State != Empty || res.Err != nil {
		t.Fatalf("Expected clean empty index, got %+v", res)
	}
	if x.Dimension() != 0 {
		t.Errorf("Expected lazy dimension 0, got %d", x.Dimension())
	}

	seed(t, x)

	if x.Len() != 5 {
		t.Fatalf("Expected 5 entries, got %d", x.Len())
	}
	if x.Dimension() != 3 {
		t.Errorf("Expected dimension 3, got %d", x.Dimension())
	}

	t.Run("RankingAndThreshold", func(t *testing.T) {
		hits, err := x.Search(ctx, []float32{1, 0, 0}, 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 3 {
			t.Fatalf("Expected 3 hits above threshold, got %d", len(hits))
		}
		if hits[0].Content != "alpha" || hits[1].Content != "alpha again" {
			t.Errorf("Expected ties broken by insertion order, got %s, %s", hits[0].Content, hits[1].Content)
		}
		if hits[2].Content != "almost alpha" {
			t.Errorf("Expected 'almost alpha' third, got %s", hits[2].Content)
		}
		for _, h := range hits {
			if h.Similarity < MinSimilarity {
				t.Errorf("Hit %s below threshold: %f", h.Content, h.Similarity)
			}
		}
	})

	t.Run("LimitK", func(t *testing.T) {
		hits, err := x.Search(ctx, []float32{1, 0, 0}, 1)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 1 {
			t.Fatalf("Expected 1 hit, got %d", len(hits))
		}
	})

	t.Run("NoneAboveThreshold", func(t *testing.T) {
		hits, err := x.Search(ctx, []float32{0, -1, 0}, 3)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("Expected no hits, got %d", len(hits))
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := x.Add(ctx, Entry{ID: 99, Content: "wrong"}, []float32{1, 0})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("Expected ErrDimensionMismatch, got %v", err)
		}
		if x.Len() != 5 {
			t.Errorf("Expected nothing appended, got %d entries", x.Len())
		}
		if _, err := x.Search(ctx, []float32{1, 0}, 3); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("Expected ErrDimensionMismatch on search, got %v", err)
		}
	})

	t.Run("ZeroVector", func(t *testing.T) {
		if err := x.Add(ctx, Entry{ID: 100}, []float32{0, 0, 0}); !errors.Is(err, ErrZeroVector) {
			t.Errorf("Expected ErrZeroVector, got %v", err)
		}
	})
}

func TestIndex_SearchEmpty(t *testing.T) {
	x, _ := Open(t.TempDir())
	hits, err := x.Search(context.Background(), []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("Search on empty index failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Expected no hits, got %d", len(hits))
	}
}

func TestIndex_PersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	x, _ := Open(dir)
	seed(t, x)
	if err := x.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	before, _ := x.Search(ctx, []float32{0.8, 0.2, 0.1}, 5)

	y, res := Open(dir)
	if res.State != Loaded || res.Entries != 5 {
		t.Fatalf("Expected loaded index of 5, got %+v", res)
	}
	if y.Dimension() != 3 {
		t.Errorf("Expected dimension 3 after load, got %d", y.Dimension())
	}
	after, err := y.Search(ctx, []float32{0.8, 0.2, 0.1}, 5)
	if err != nil {
		t.Fatalf("Search after load failed: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("Expected %d hits after reload, got %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Errorf("Rank %d: expected id %d, got %d", i, before[i].ID, after[i].ID)
		}
	}

	// appending after load keeps ordinals dense
	if err := y.Add(ctx, Entry{ID: 6, Content: "delta"}, []float32{0, 1, 1}); err != nil {
		t.Fatalf("Add after load failed: %v", err)
	}
	if e, ok := y.Entry(5); !ok || e.Content != "delta" {
		t.Errorf("Expected 'delta' at ordinal 5, got %+v", e)
	}
}

func TestOpen_CorruptFilesMovedAside(t *testing.T) {
	dir := t.TempDir()
	x, _ := Open(dir)
	seed(t, x)
	if err := x.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, MetadataFile), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	y, res := Open(dir)
	if y == nil {
		t.Fatal("Expected a usable empty index")
	}
	if res.State != Empty || res.Err == nil {
		t.Fatalf("Expected empty state with error, got %+v", res)
	}
	if y.Len() != 0 {
		t.Errorf("Expected empty index, got %d entries", y.Len())
	}

	names, _ := os.ReadDir(dir)
	var moved int
	for _, n := range names {
		if strings.Contains(n.Name(), ".corrupt-") {
			moved++
		}
	}
	if moved != 2 {
		t.Errorf("Expected both files moved aside, found %d", moved)
	}
}

func TestOpen_CountMismatch(t *testing.T) {
	dir := t.TempDir()
	x, _ := Open(dir)
	seed(t, x)
	x.Save()

	meta := `{"dimension":3,"entries":[{"id":1,"content":"alpha","category":"general"}]}`
	os.WriteFile(filepath.Join(dir, MetadataFile), []byte(meta), 0600)

	_, res := Open(dir)
	if res.State != Empty || res.Err == nil {
		t.Errorf("Expected mismatch to be reported, got %+v", res)
	}
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if v[0] < 0.599 || v[0] > 0.601 || v[1] < 0.799 || v[1] > 0.801 {
		t.Errorf("Expected [0.6 0.8], got %v", v)
	}
	if _, err := Normalize(nil); !errors.Is(err, ErrZeroVector) {
		t.Errorf("Expected ErrZeroVector for empty input, got %v", err)
	}
}
