package matcher

import (
	"math"
	"sort"
)

// maxAlternatives is how many runner-up candidates are kept per face for
// human review.
const maxAlternatives = 2

// FaceInput is one detected face offered for matching. Faces without an
// embedding (extraction failed) are returned ignored.
type FaceInput struct {
	FaceIndex int
	Embedding []float32
}

// Reference is one stored embedding for a candidate student. A student may
// hold several references; the minimum distance over them is used.
type Reference struct {
	StudentID uint
	Vector    []float32
}

// Candidate is one ranked (student, distance) pair for a face.
type Candidate struct {
	StudentID uint
	Distance  float64
}

// FaceResult is the matching outcome for one face.
type FaceResult struct {
	FaceIndex    int
	StudentID    *uint // nil when no student is claimed
	Distance     float64
	Level        ConfidenceLevel
	Confidence   float64 // display percentage
	Alternatives []Candidate
}

// EuclideanDistance computes the L2 distance between two embedding vectors.
// Mismatched or empty vectors yield +Inf so they can never win a ranking.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// rankCandidates computes, for one face, the per-student minimum distance over
// all of that student's references, ranked ascending. Ties break on student id
// so results are deterministic.
func rankCandidates(embedding []float32, refs []Reference) []Candidate {
	best := make(map[uint]float64)
	for _, ref := range refs {
		d := EuclideanDistance(embedding, ref.Vector)
		if math.IsInf(d, 1) {
			continue
		}
		if cur, ok := best[ref.StudentID]; !ok || d < cur {
			best[ref.StudentID] = d
		}
	}

	candidates := make([]Candidate, 0, len(best))
	for id, d := range best {
		candidates = append(candidates, Candidate{StudentID: id, Distance: d})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].StudentID < candidates[j].StudentID
	})
	return candidates
}

// Match ranks every face against the class reference set, classifies by the
// given thresholds and resolves multi-face-to-one-student conflicts. An empty
// reference set is a valid zero-match outcome: every face comes back LOW.
func Match(faces []FaceInput, refs []Reference, thresholds Thresholds) []FaceResult {
	ranked := make([][]Candidate, len(faces))
	results := make([]FaceResult, len(faces))

	for i, face := range faces {
		results[i] = FaceResult{
			FaceIndex:  face.FaceIndex,
			Level:      ConfidenceLow,
			Confidence: 0,
		}
		if len(face.Embedding) == 0 {
			continue
		}
		ranked[i] = rankCandidates(face.Embedding, refs)
	}

	assignments := resolveConflicts(ranked, thresholds)

	for i := range results {
		candidates := ranked[i]
		if len(candidates) == 0 {
			continue
		}

		// alternatives are the next-ranked candidates below the kept one
		start := assignments[i] + 1
		if assignments[i] < 0 {
			start = 1
		}
		for j := start; j < len(candidates) && len(results[i].Alternatives) < maxAlternatives; j++ {
			results[i].Alternatives = append(results[i].Alternatives, candidates[j])
		}

		if assignments[i] < 0 {
			// demoted to exhaustion or never claimed anyone
			results[i].Distance = candidates[0].Distance
			results[i].Level = ConfidenceLow
			results[i].Confidence = ConfidencePercent(candidates[0].Distance)
			continue
		}

		won := candidates[assignments[i]]
		level := thresholds.Classify(won.Distance)
		results[i].Distance = won.Distance
		results[i].Level = level
		results[i].Confidence = ConfidencePercent(won.Distance)
		if level != ConfidenceLow {
			id := won.StudentID
			results[i].StudentID = &id
		}
	}

	return results
}
