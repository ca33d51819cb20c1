// Package assign turns a company's decision makers into the fixed five-role
// outreach assignment used to build a lead payload.
package assign

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/righthand-talent/placement-cli/internal/model"
)

// Role is one of the five fixed outreach slots.
type Role string

const (
	RolePrimary Role = "primary"
	RoleCC1     Role = "cc_1"
	RoleCC2     Role = "cc_2"
	RoleAlt1    Role = "alt_1"
	RoleAlt2    Role = "alt_2"
)

// Roles lists the slots in fill order.
var Roles = [5]Role{RolePrimary, RoleCC1, RoleCC2, RoleAlt1, RoleAlt2}

// Assignment is the closed result of assigning one company's decision
// makers. Slots past the ranked list stay out of Assigned and appear in
// Unassigned instead; a payload builder must emit them as explicit empties.
type Assignment struct {
	Assigned   map[Role]model.DecisionMaker
	Unassigned []Role
}

// Assign ranks the company's decision makers through the oracle and fills
// the role slots best-first. People without an email are excluded before
// ranking. A nil result with a nil error means the company has no usable
// primary and must be skipped for this round.
func Assign(ctx context.Context, oracle Oracle, dms []model.DecisionMaker) (*Assignment, error) {
	var usable []model.DecisionMaker
	for _, dm := range dms {
		if dm.Email != nil && *dm.Email != "" {
			usable = append(usable, dm)
		}
	}
	if len(usable) == 0 {
		zap.L().Info("no decision makers with emails, skipping company",
			zap.Int("total", len(dms)))
		return nil, nil
	}

	ranking, err := oracle.Rank(ctx, toProspects(usable))
	if err != nil {
		return nil, eris.Wrap(err, "assign: rank decision makers")
	}
	if err := validateRanking(ranking, usable); err != nil {
		// The contract was violated; fall back to the deterministic order.
		zap.L().Warn("oracle returned an invalid ranking, using comparator order",
			zap.Error(err))
		ranking, _ = Comparator{}.Rank(ctx, toProspects(usable))
	}
	if len(ranking) == 0 {
		return nil, nil
	}

	out := &Assignment{Assigned: make(map[Role]model.DecisionMaker, len(Roles))}
	for i, role := range Roles {
		if i >= len(ranking) {
			out.Unassigned = append(out.Unassigned, role)
			continue
		}
		out.Assigned[role] = usable[ranking[i]]
	}
	return out, nil
}

// validateRanking checks the oracle contract: indices unique and in range,
// and no headline-less person ranked ahead of anyone with a headline.
func validateRanking(ranking []int, usable []model.DecisionMaker) error {
	seen := make(map[int]bool, len(ranking))
	sawMissingHeadline := false
	for _, idx := range ranking {
		if idx < 0 || idx >= len(usable) {
			return eris.Errorf("index %d out of range", idx)
		}
		if seen[idx] {
			return eris.Errorf("duplicate index %d", idx)
		}
		seen[idx] = true

		if usable[idx].Headline == "" {
			sawMissingHeadline = true
		} else if sawMissingHeadline {
			return eris.New("headline-less prospect ranked ahead of one with a headline")
		}
	}
	return nil
}

func toProspects(dms []model.DecisionMaker) []Prospect {
	out := make([]Prospect, len(dms))
	for i, dm := range dms {
		email := ""
		if dm.Email != nil {
			email = *dm.Email
		}
		out[i] = Prospect{
			Email:     email,
			Seniority: dm.Seniority,
			Title:     dm.Title,
			Headline:  dm.Headline,
		}
	}
	return out
}
