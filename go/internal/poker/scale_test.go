package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScale_Index(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, DefaultScale.Index(1))
	assert.Equal(t, 5, DefaultScale.Index(13))
	assert.Equal(t, -1, DefaultScale.Index(4))
	assert.True(t, DefaultScale.Contains(8))
	assert.False(t, DefaultScale.Contains(0))
}

func TestScale_Nearest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mean float64
		want int
	}{
		{mean: 0, want: 1},
		{mean: 1.5, want: 1}, // tie between 1 and 2 goes to the earlier value
		{mean: 4, want: 3},   // tie between 3 and 5
		{mean: 4.1, want: 5},
		{mean: 7, want: 8},
		{mean: 10.5, want: 8}, // tie between 8 and 13
		{mean: 40, want: 13},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultScale.Nearest(tt.mean), "mean %v", tt.mean)
	}

	assert.Equal(t, 0, Scale{}.Nearest(3))
}
