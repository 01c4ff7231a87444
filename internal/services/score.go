package services

import (
	"sort"

	"github.com/eclore/eclore/internal/catalog"
)

// AxisScore pairs an axis with the sum of all recorded answers tagged to it.
type AxisScore struct {
	Axis  catalog.Axis
	Score int
}

// maxFocusCandidates caps how many scored axes are offered for selection.
const maxFocusCandidates = 4

// ScoreAxes aggregates the answer map into a ranked analysis: one entry per
// catalog axis, sorted descending by score. Ties keep catalog declaration
// order (stable sort). Axes untagged by any answered question score 0.
func ScoreAxes(c *catalog.Catalog, answers map[string]int) []AxisScore {
	totals := map[string]int{}
	for _, sec := range c.Sections {
		for _, q := range sec.Questions {
			if q.Axis == "" {
				continue
			}
			if v, ok := answers[q.ID]; ok {
				totals[q.Axis] += v
			}
		}
	}
	out := make([]AxisScore, 0, len(c.Axes))
	for _, a := range c.Axes {
		out = append(out, AxisScore{Axis: a, Score: totals[a.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// FocusCandidates filters a ranked analysis down to the axes offered for
// focus selection: score > 0, top four at most.
func FocusCandidates(scores []AxisScore) []AxisScore {
	out := make([]AxisScore, 0, maxFocusCandidates)
	for _, s := range scores {
		if s.Score <= 0 {
			continue
		}
		out = append(out, s)
		if len(out) == maxFocusCandidates {
			break
		}
	}
	return out
}
