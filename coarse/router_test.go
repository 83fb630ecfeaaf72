package coarse

import (
	"errors"
	"testing"
)

func testRouter(t *testing.T) *Router {
	t.Helper()

	centroids := []float32{
		0, 0, // cluster 0
		10, 0, // cluster 1
		0, 10, // cluster 2
		10, 10, // cluster 3
	}

	r, err := NewRouter(2, centroids)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	return r
}

func TestAssign(t *testing.T) {
	r := testRouter(t)

	tests := []struct {
		vec  []float32
		want int
	}{
		{[]float32{1, 1}, 0},
		{[]float32{9, 1}, 1},
		{[]float32{1, 9}, 2},
		{[]float32{11, 11}, 3},
	}

	for _, tt := range tests {
		got, err := r.Assign(tt.vec)
		if err != nil {
			t.Fatalf("Assign(%v) error: %v", tt.vec, err)
		}
		if got != tt.want {
			t.Errorf("Assign(%v) = %d, want %d", tt.vec, got, tt.want)
		}
	}
}

func TestAssignDimensionMismatch(t *testing.T) {
	r := testRouter(t)

	_, err := r.Assign([]float32{1, 2, 3})

	var dm *ErrDimensionMismatch
	if !errors.As(err, &dm) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if dm.Expected != 2 || dm.Actual != 3 {
		t.Errorf("error context = %d/%d, want 2/3", dm.Expected, dm.Actual)
	}
}

func TestProbeOrdering(t *testing.T) {
	r := testRouter(t)

	got, err := r.Probe([]float32{2, 1}, 4)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	// Distances from (2,1): c0=5, c1=65, c2=85, c3=145.
	want := []int{0, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Probe order = %v, want %v", got, want)
		}
	}
}

func TestProbeTieBreaksByLowerID(t *testing.T) {
	// Clusters 0 and 1 are equidistant from the query.
	centroids := []float32{
		-1, 0,
		1, 0,
		100, 100,
	}
	r, err := NewRouter(2, centroids)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	got, err := r.Probe([]float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if got[0] != 0 || got[1] != 1 {
		t.Errorf("Probe = %v, want [0 1] (tie broken by lower id)", got)
	}
}

func TestProbeClampsToClusterCount(t *testing.T) {
	r := testRouter(t)

	got, err := r.Probe([]float32{0, 0}, 100)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(got) != r.NumClusters() {
		t.Errorf("Probe returned %d clusters, want %d", len(got), r.NumClusters())
	}
}

func TestProbeRejectsNonPositiveN(t *testing.T) {
	r := testRouter(t)

	if _, err := r.Probe([]float32{0, 0}, 0); err == nil {
		t.Error("nProbe=0 should be rejected")
	}
}

func TestNewRouterValidation(t *testing.T) {
	if _, err := NewRouter(0, []float32{1}); err == nil {
		t.Error("zero dimension should be rejected")
	}
	if _, err := NewRouter(2, []float32{1, 2, 3}); err == nil {
		t.Error("length not a multiple of dim should be rejected")
	}
	if _, err := NewRouter(2, nil); err == nil {
		t.Error("empty centroids should be rejected")
	}
}
