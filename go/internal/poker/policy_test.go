package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenyList_Excluded(t *testing.T) {
	t.Parallel()

	d, err := NewDenyList([]string{"Satan", "  ", "bot"}, []string{`^admin\d*$`})
	require.NoError(t, err)

	assert.True(t, d.Excluded("satan"))
	assert.True(t, d.Excluded("Little SATANist"))
	assert.True(t, d.Excluded("RoBoT"))
	assert.True(t, d.Excluded("admin42"))
	assert.False(t, d.Excluded("Admin42"))
	assert.False(t, d.Excluded("Ada"))

	assert.False(t, (*DenyList)(nil).Excluded("satan"))
}

func TestNewDenyList_BadPattern(t *testing.T) {
	t.Parallel()

	_, err := NewDenyList(nil, []string{"("})
	assert.Error(t, err)
}

func TestPolicy_IsOutlier(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	assert.False(t, p.IsOutlier(13, nil), "no other votes")
	assert.False(t, p.IsOutlier(3, []int{1}), "two positions above is allowed")
	assert.True(t, p.IsOutlier(5, []int{1}))
	assert.True(t, p.IsOutlier(13, []int{5, 2}))
	assert.False(t, p.IsOutlier(1, []int{13}), "votes below are never outliers")

	p.OutlierThreshold = -1
	assert.False(t, p.IsOutlier(13, []int{1}))

	p.OutlierThreshold = 0
	assert.True(t, p.IsOutlier(2, []int{1}))
}
