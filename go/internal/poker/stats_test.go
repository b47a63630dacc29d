package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats_KnownRounds(t *testing.T) {
	t.Parallel()

	stats := ComputeStats(map[string]int{"A": 1, "B": 13})
	assert.Equal(t, 7.0, stats.Mean)
	assert.Equal(t, 8, stats.Closest)
	assert.False(t, stats.AllSame)
	assert.Equal(t, map[int]int{1: 1, 13: 1}, stats.Counts)
	assert.Equal(t, 2, stats.Total)

	stats = ComputeStats(map[string]int{"A": 5, "B": 5, "C": 5})
	assert.Equal(t, 5.0, stats.Mean)
	assert.Equal(t, 5, stats.Closest)
	assert.True(t, stats.AllSame)
	assert.Equal(t, map[int]int{5: 3}, stats.Counts)
}

func TestComputeStats_Empty(t *testing.T) {
	t.Parallel()

	stats := ComputeStats(map[string]int{})
	assert.Equal(t, 0.0, stats.Mean)
	assert.Equal(t, 0, stats.Closest)
	assert.False(t, stats.AllSame)
	assert.Empty(t, stats.Counts)

	assert.False(t, ComputeStats(nil).AllSame)
}

func TestComputeStats_AllSame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		votes map[string]int
		want  bool
	}{
		{name: "single vote", votes: map[string]int{"A": 3}, want: true},
		{name: "two equal", votes: map[string]int{"A": 8, "B": 8}, want: true},
		{name: "one differs", votes: map[string]int{"A": 8, "B": 8, "C": 5}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStats(tt.votes).AllSame)
		})
	}
}

func TestComputeStats_MeanAndClosest(t *testing.T) {
	t.Parallel()

	stats := ComputeStats(map[string]int{"A": 1, "B": 2, "C": 3, "D": 5})
	assert.InDelta(t, 2.75, stats.Mean, 1e-9)
	assert.Equal(t, 3, stats.Closest)
	assert.True(t, DefaultScale.Contains(stats.Closest))
}
