package analyze

import (
	"sort"
	"strings"
	"time"

	"github.com/anavidal/bentos/internal/subtitle"
	"github.com/anavidal/bentos/pkg/types"
)

// DefaultDedupWindow is the temporal proximity within which two mentions of
// the same species count as one sighting.
const DefaultDedupWindow = 5 * time.Minute

// Deduplicate collapses repeated mentions of the same species that fall
// within window of each other. Mentions are grouped by case-folded common
// name; each group is sorted by timestamp and walked in order, keeping a
// mention only when it is farther than window from EVERY already-kept member
// of its group — not just the previous one, so three sightings at 0s, 250s
// and 450s collapse to the first alone (450s is within window of 250s, and
// 250s was itself discarded).
//
// Output preserves first-seen group order, then timestamp order within each
// group. Unparseable timestamps sort as zero, the transcript start.
func Deduplicate(mentions []types.Mention, window time.Duration) []types.Mention {
	if window <= 0 {
		window = DefaultDedupWindow
	}

	type group struct {
		members []types.Mention
	}
	var order []string
	groups := make(map[string]*group)
	for _, m := range mentions {
		key := strings.ToLower(m.CommonName)
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, m)
	}

	var unique []types.Mention
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.members, func(i, j int) bool {
			return mentionTime(g.members[i]) < mentionTime(g.members[j])
		})

		var kept []types.Mention
		for _, m := range g.members {
			t := mentionTime(m)
			duplicate := false
			for _, k := range kept {
				if diff := t - mentionTime(k); diff <= window && diff >= -window {
					duplicate = true
					break
				}
			}
			if !duplicate {
				kept = append(kept, m)
			}
		}
		unique = append(unique, kept...)
	}
	return unique
}

// mentionTime parses the mention timestamp, collapsing malformed values to
// zero so that dedup stays total over dirty input.
func mentionTime(m types.Mention) time.Duration {
	d, err := subtitle.ParseTimestamp(m.Timestamp)
	if err != nil {
		return 0
	}
	return d
}
