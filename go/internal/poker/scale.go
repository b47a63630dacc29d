package poker

import "math"

// Scale is the ordered set of points a vote may take.
type Scale []int

// DefaultScale is the fixed point scale shared by every session.
var DefaultScale = Scale{1, 2, 3, 5, 8, 13}

// Contains reports whether point is on the scale.
func (s Scale) Contains(point int) bool {
	return s.Index(point) >= 0
}

// Index returns the position of point on the scale, or -1.
func (s Scale) Index(point int) int {
	for i, p := range s {
		if p == point {
			return i
		}
	}
	return -1
}

// Nearest returns the scale value closest to x. Ties go to the earlier
// value; an empty scale yields 0.
func (s Scale) Nearest(x float64) int {
	if len(s) == 0 {
		return 0
	}

	best := s[0]
	bestDiff := math.Abs(float64(best) - x)
	for _, p := range s[1:] {
		if diff := math.Abs(float64(p) - x); diff < bestDiff {
			best, bestDiff = p, diff
		}
	}
	return best
}
