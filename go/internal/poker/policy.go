package poker

import (
	"fmt"
	"regexp"
	"strings"
)

// ExclusionPolicy decides which names may not join a session.
type ExclusionPolicy interface {
	Excluded(name string) bool
}

// DenyList excludes names containing any listed fragment (case-insensitive)
// or matching any pattern.
type DenyList struct {
	fragments []string
	patterns  []*regexp.Regexp
}

// NewDenyList compiles a deny list. Empty fragments are ignored.
func NewDenyList(fragments, patterns []string) (*DenyList, error) {
	d := &DenyList{}
	for _, f := range fragments {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			d.fragments = append(d.fragments, f)
		}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile exclusion pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

func (d *DenyList) Excluded(name string) bool {
	if d == nil {
		return false
	}
	lower := strings.ToLower(name)
	for _, f := range d.fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	for _, re := range d.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Policy holds the tunable voting rules of a session.
type Policy struct {
	Scale Scale
	// OutlierThreshold is how many scale positions above the lowest other
	// vote a point may sit before it needs confirming. Negative disables.
	OutlierThreshold int
	Exclusion        ExclusionPolicy
}

// DefaultPolicy returns the default scale, a threshold of two positions and
// no exclusions.
func DefaultPolicy() Policy {
	return Policy{
		Scale:            DefaultScale,
		OutlierThreshold: 2,
	}
}

// IsOutlier reports whether point sits more than OutlierThreshold positions
// above the lowest of others.
func (p Policy) IsOutlier(point int, others []int) bool {
	if p.OutlierThreshold < 0 || len(others) == 0 {
		return false
	}

	idx := p.Scale.Index(point)
	if idx < 0 {
		return false
	}

	lowest := -1
	for _, o := range others {
		if i := p.Scale.Index(o); i >= 0 && (lowest < 0 || i < lowest) {
			lowest = i
		}
	}
	return lowest >= 0 && idx-lowest > p.OutlierThreshold
}

func (p Policy) excluded(name string) bool {
	return p.Exclusion != nil && p.Exclusion.Excluded(name)
}
