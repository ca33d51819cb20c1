package assign

import (
	"context"
	"sort"
)

// Prospect is the descriptor the ranking oracle sees for one decision maker.
type Prospect struct {
	Email     string `json:"email"`
	Seniority string `json:"seniority"`
	Title     string `json:"title"`
	Headline  string `json:"headline"`
}

// Oracle orders prospects by outreach suitability. The returned slice holds
// unique indices into the input, best first. A prospect with a missing
// headline must rank strictly after every prospect that has one.
type Oracle interface {
	Rank(ctx context.Context, prospects []Prospect) ([]int, error)
}

// seniorityRank orders the seniority labels the people search can return.
// Higher is better.
var seniorityRank = map[string]int{
	"owner":   3,
	"founder": 2,
	"c_suite": 1,
}

// Comparator is the deterministic ranking oracle. Sort key: has-headline
// desc, seniority rank desc, input order as the tie break.
type Comparator struct{}

func (Comparator) Rank(_ context.Context, prospects []Prospect) ([]int, error) {
	idx := make([]int, len(prospects))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		pa, pb := prospects[idx[a]], prospects[idx[b]]
		if (pa.Headline != "") != (pb.Headline != "") {
			return pa.Headline != ""
		}
		return seniorityRank[pa.Seniority] > seniorityRank[pb.Seniority]
	})
	return idx, nil
}
