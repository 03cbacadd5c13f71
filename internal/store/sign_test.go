package store

import (
	"errors"
	"testing"
)

func TestSignRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Signs()

	sample := &SignSample{ID: "s1", Label: "hello", Features: []float64{0.5, -1.25, 3}}
	if err := repo.Create(sample); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}
	if sample.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on create")
	}

	got, err := repo.GetByID("s1")
	if err != nil {
		t.Fatalf("failed to get sample: %v", err)
	}
	if got.Label != "hello" {
		t.Errorf("Label = %q, want hello", got.Label)
	}
	if len(got.Features) != 3 || got.Features[1] != -1.25 {
		t.Errorf("Features = %v, want %v", got.Features, sample.Features)
	}

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID error = %v, want ErrNotFound", err)
	}
}

func TestSignRepository_ListAndDelete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Signs()

	for _, sample := range []*SignSample{
		{ID: "1", Label: "hello", Features: []float64{1}},
		{ID: "2", Label: "thanks", Features: []float64{2}},
		{ID: "3", Label: "hello", Features: []float64{3}},
	} {
		if err := repo.Create(sample); err != nil {
			t.Fatalf("failed to create sample %s: %v", sample.ID, err)
		}
	}

	all, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list samples: %v", err)
	}
	if len(all) != 3 || all[0].ID != "1" || all[2].ID != "3" {
		t.Fatalf("List returned %d samples in unexpected order", len(all))
	}

	hello, err := repo.ListByLabel("hello")
	if err != nil {
		t.Fatalf("failed to list by label: %v", err)
	}
	if len(hello) != 2 {
		t.Errorf("ListByLabel returned %d samples, want 2", len(hello))
	}

	if err := repo.Delete("2"); err != nil {
		t.Fatalf("failed to delete sample: %v", err)
	}
	if err := repo.Delete("2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}

	n, err := repo.DeleteByLabel("hello")
	if err != nil {
		t.Fatalf("failed to delete by label: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteByLabel removed %d samples, want 2", n)
	}

	all, _ = repo.List()
	if len(all) != 0 {
		t.Errorf("expected no samples left, got %d", len(all))
	}
}
