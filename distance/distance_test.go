package distance

import (
	"math"
	"testing"
)

func TestSquaredL2(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	if got := SquaredL2(a, b); got != 2 {
		t.Errorf("SquaredL2 = %f, want 2", got)
	}
}

func TestNormalizeL2InPlace(t *testing.T) {
	v := []float32{3, 4}
	if !NormalizeL2InPlace(v) {
		t.Fatal("NormalizeL2InPlace returned false for non-zero vector")
	}

	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v, want [0.6 0.8]", v)
	}
}

func TestNormalizeL2ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	if NormalizeL2InPlace(v) {
		t.Error("NormalizeL2InPlace should return false for zero vector")
	}

	if _, ok := NormalizeL2Copy(v); ok {
		t.Error("NormalizeL2Copy should return false for zero vector")
	}
}

func TestNormalizeL2CopyDoesNotMutate(t *testing.T) {
	src := []float32{3, 4}
	dst, ok := NormalizeL2Copy(src)
	if !ok {
		t.Fatal("NormalizeL2Copy returned false")
	}

	if src[0] != 3 || src[1] != 4 {
		t.Errorf("source mutated: %v", src)
	}
	if dst[0] == 3 {
		t.Error("copy not normalized")
	}
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{MetricL2, MetricCosine} {
		fn, err := Provider(m)
		if err != nil {
			t.Fatalf("Provider(%v) error: %v", m, err)
		}
		if fn == nil {
			t.Fatalf("Provider(%v) returned nil func", m)
		}
	}

	if _, err := Provider(Metric(42)); err == nil {
		t.Error("Provider should reject unknown metric")
	}
}

func TestMetricString(t *testing.T) {
	if MetricL2.String() != "L2" || MetricCosine.String() != "Cosine" {
		t.Error("unexpected metric names")
	}
	if Metric(9).Valid() {
		t.Error("Metric(9) should be invalid")
	}
}
