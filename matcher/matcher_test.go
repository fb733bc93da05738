package matcher

import (
	"math"
	"testing"
)

var testThresholds = Thresholds{High: 0.40, Medium: 0.55, Version: "v1"}

// vec builds a 128-d embedding with the given leading values, zero elsewhere.
func vec(vals ...float32) []float32 {
	v := make([]float32, 128)
	copy(v, vals)
	return v
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", vec(1, 2, 3), vec(1, 2, 3), 0},
		{"unit apart", vec(1), vec(0), 1},
		{"3-4-5", vec(3, 0), vec(0, 4), 5},
		{"length mismatch", []float32{1, 2}, []float32{1}, math.Inf(1)},
		{"both empty", nil, nil, math.Inf(1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EuclideanDistance(tc.a, tc.b)
			if math.IsInf(tc.want, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("EuclideanDistance() = %v, want +Inf", got)
				}
				return
			}
			if math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("EuclideanDistance() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		distance float64
		want     ConfidenceLevel
	}{
		{0.0, ConfidenceHigh},
		{0.39, ConfidenceHigh},
		{0.40, ConfidenceMedium},
		{0.54, ConfidenceMedium},
		{0.55, ConfidenceLow},
		{0.90, ConfidenceLow},
	}

	for _, tc := range tests {
		got := testThresholds.Classify(tc.distance)
		if got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.distance, got, tc.want)
		}
	}
}

func TestClassifyIsPureInSnapshot(t *testing.T) {
	snapshot := Thresholds{High: 0.40, Medium: 0.55, Version: "v1"}
	before := snapshot.Classify(0.45)

	// a later, looser global configuration must not affect the snapshot
	_ = Thresholds{High: 0.50, Medium: 0.70, Version: "v2"}

	if after := snapshot.Classify(0.45); after != before {
		t.Errorf("snapshot classification changed: %v -> %v", before, after)
	}
	if before != ConfidenceMedium {
		t.Errorf("Classify(0.45) under snapshot = %v, want MEDIUM", before)
	}
}

func TestConfidencePercent(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0.0, 100},
		{0.3, 50},
		{0.6, 0},
		{0.9, 0},
		{-0.1, 100},
	}

	for _, tc := range tests {
		got := ConfidencePercent(tc.distance)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ConfidencePercent(%v) = %v, want %v", tc.distance, got, tc.want)
		}
	}
}

func TestConfidencePercentMonotone(t *testing.T) {
	prev := math.Inf(1)
	for d := 0.0; d <= 0.8; d += 0.01 {
		got := ConfidencePercent(d)
		if got > prev {
			t.Fatalf("confidence increased at distance %v: %v > %v", d, got, prev)
		}
		prev = got
	}
}

func TestMatchSingleFace(t *testing.T) {
	refs := []Reference{
		{StudentID: 1, Vector: vec(0.1)},
		{StudentID: 2, Vector: vec(0.9)},
	}
	faces := []FaceInput{{FaceIndex: 0, Embedding: vec(0.1)}}

	results := Match(faces, refs, testThresholds)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.StudentID == nil || *r.StudentID != 1 {
		t.Fatalf("expected student 1, got %v", r.StudentID)
	}
	if r.Level != ConfidenceHigh {
		t.Errorf("expected HIGH, got %v", r.Level)
	}
	if len(r.Alternatives) != 1 || r.Alternatives[0].StudentID != 2 {
		t.Errorf("expected student 2 as alternative, got %v", r.Alternatives)
	}
}

func TestMatchUsesMinDistancePerStudent(t *testing.T) {
	// student 1 has two references; the closer one must win the ranking
	refs := []Reference{
		{StudentID: 1, Vector: vec(0.5)},
		{StudentID: 1, Vector: vec(0.1)},
		{StudentID: 2, Vector: vec(0.25)},
	}
	faces := []FaceInput{{FaceIndex: 0, Embedding: vec(0.1)}}

	results := Match(faces, refs, testThresholds)
	r := results[0]
	if r.StudentID == nil || *r.StudentID != 1 {
		t.Fatalf("expected student 1, got %v", r.StudentID)
	}
	if math.Abs(r.Distance) > 1e-6 {
		t.Errorf("expected min distance 0, got %v", r.Distance)
	}
}

func TestMatchEmptyReferenceSet(t *testing.T) {
	faces := []FaceInput{
		{FaceIndex: 0, Embedding: vec(0.1)},
		{FaceIndex: 1, Embedding: vec(0.2)},
	}

	results := Match(faces, nil, testThresholds)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.StudentID != nil {
			t.Errorf("face %d: expected no match against empty roster, got student %d", r.FaceIndex, *r.StudentID)
		}
		if r.Level != ConfidenceLow {
			t.Errorf("face %d: expected LOW, got %v", r.FaceIndex, r.Level)
		}
	}
}

func TestMatchNilEmbeddingIsIgnored(t *testing.T) {
	refs := []Reference{{StudentID: 1, Vector: vec(0.1)}}
	faces := []FaceInput{{FaceIndex: 0, Embedding: nil}}

	results := Match(faces, refs, testThresholds)
	if results[0].StudentID != nil {
		t.Errorf("face without embedding must not match, got student %d", *results[0].StudentID)
	}
	if results[0].Level != ConfidenceLow {
		t.Errorf("expected LOW, got %v", results[0].Level)
	}
}

func TestMatchConflictKeepsClosestFace(t *testing.T) {
	refs := []Reference{
		{StudentID: 1, Vector: vec(0)},
		{StudentID: 2, Vector: vec(0.3)},
	}
	// both faces rank student 1 first; face 1 is closer
	faces := []FaceInput{
		{FaceIndex: 0, Embedding: vec(0.1)},
		{FaceIndex: 1, Embedding: vec(0.05)},
	}

	results := Match(faces, refs, testThresholds)

	if results[1].StudentID == nil || *results[1].StudentID != 1 {
		t.Fatalf("closest face should keep student 1, got %v", results[1].StudentID)
	}
	// face 0 is demoted to its next-best unclaimed candidate, student 2
	if results[0].StudentID == nil || *results[0].StudentID != 2 {
		t.Fatalf("demoted face should fall back to student 2, got %v", results[0].StudentID)
	}

	// at most one face per student
	seen := map[uint]int{}
	for _, r := range results {
		if r.StudentID != nil {
			seen[*r.StudentID]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("student %d claimed by %d faces", id, n)
		}
	}
}

func TestMatchConflictExhaustionFallsToIgnored(t *testing.T) {
	// one enrolled student, three faces all pointing at them
	refs := []Reference{{StudentID: 1, Vector: vec(0)}}
	faces := []FaceInput{
		{FaceIndex: 0, Embedding: vec(0.10)},
		{FaceIndex: 1, Embedding: vec(0.05)},
		{FaceIndex: 2, Embedding: vec(0.20)},
	}

	results := Match(faces, refs, testThresholds)

	matched := 0
	for _, r := range results {
		if r.StudentID != nil {
			matched++
			if *r.StudentID != 1 {
				t.Errorf("unexpected student %d", *r.StudentID)
			}
			if r.FaceIndex != 1 {
				t.Errorf("expected closest face 1 to win, got face %d", r.FaceIndex)
			}
		} else if r.Level != ConfidenceLow {
			t.Errorf("exhausted face %d should be LOW, got %v", r.FaceIndex, r.Level)
		}
	}
	if matched != 1 {
		t.Errorf("expected exactly 1 matched face, got %d", matched)
	}
}

func TestMatchAdversarialManyToOne(t *testing.T) {
	// 40 faces all chasing the same 3 students must terminate and keep the
	// one-face-per-student invariant
	refs := []Reference{
		{StudentID: 1, Vector: vec(0)},
		{StudentID: 2, Vector: vec(0.01)},
		{StudentID: 3, Vector: vec(0.02)},
	}
	var faces []FaceInput
	for i := 0; i < 40; i++ {
		faces = append(faces, FaceInput{FaceIndex: i, Embedding: vec(float32(i) * 0.001)})
	}

	results := Match(faces, refs, testThresholds)

	seen := map[uint]bool{}
	matched := 0
	for _, r := range results {
		if r.StudentID == nil {
			continue
		}
		matched++
		if seen[*r.StudentID] {
			t.Fatalf("student %d matched twice", *r.StudentID)
		}
		seen[*r.StudentID] = true
	}
	if matched != 3 {
		t.Errorf("expected 3 matches (one per student), got %d", matched)
	}
}

func TestMatchAlternativesFollowAssignment(t *testing.T) {
	refs := []Reference{
		{StudentID: 1, Vector: vec(0)},
		{StudentID: 2, Vector: vec(0.05)},
		{StudentID: 3, Vector: vec(0.10)},
		{StudentID: 4, Vector: vec(0.15)},
	}
	faces := []FaceInput{{FaceIndex: 0, Embedding: vec(0.01)}}

	results := Match(faces, refs, testThresholds)
	r := results[0]
	if r.StudentID == nil || *r.StudentID != 1 {
		t.Fatalf("expected student 1, got %v", r.StudentID)
	}
	if len(r.Alternatives) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(r.Alternatives))
	}
	if r.Alternatives[0].StudentID != 2 || r.Alternatives[1].StudentID != 3 {
		t.Errorf("alternatives out of order: %+v", r.Alternatives)
	}
}
