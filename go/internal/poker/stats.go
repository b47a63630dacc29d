package poker

// Stats summarizes a vote map for display once votes are revealed.
type Stats struct {
	Counts  map[int]int `json:"counts"`
	Total   int         `json:"total"`
	Mean    float64     `json:"mean"`
	Closest int         `json:"closest"`
	AllSame bool        `json:"all_same"`
}

// ComputeStats summarizes votes against the default scale.
func ComputeStats(votes map[string]int) Stats {
	return DefaultScale.Stats(votes)
}

// Stats summarizes votes against s. An empty map yields a zero mean, a
// zero closest value and AllSame false.
func (s Scale) Stats(votes map[string]int) Stats {
	stats := Stats{Counts: make(map[int]int, len(votes))}
	if len(votes) == 0 {
		return stats
	}

	sum := 0
	first, same := 0, true
	for _, point := range votes {
		if stats.Total == 0 {
			first = point
		} else if point != first {
			same = false
		}
		stats.Counts[point]++
		stats.Total++
		sum += point
	}

	stats.Mean = float64(sum) / float64(stats.Total)
	stats.Closest = s.Nearest(stats.Mean)
	stats.AllSame = same
	return stats
}
