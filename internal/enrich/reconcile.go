// Package enrich reconciles vendor records into the store by natural key.
// Re-running a reconcile is always safe: rows are matched on the vendor id,
// existing rows are refreshed in place, and internal ids never change.
package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/righthand-talent/placement-cli/internal/model"
	"github.com/righthand-talent/placement-cli/pkg/apollo"
)

// Reconcile upserts items through fn and returns the resulting internal ids
// in input order. Items whose key is empty are skipped and marked with a nil
// id so callers can keep positional correspondence with the vendor payload.
func Reconcile[T any](ctx context.Context, items []T, key func(T) string, fn func(context.Context, T) (int64, error)) ([]*int64, error) {
	ids := make([]*int64, len(items))
	skipped := 0
	for i, item := range items {
		k := key(item)
		if k == "" {
			skipped++
			continue
		}
		id, err := fn(ctx, item)
		if err != nil {
			return nil, eris.Wrapf(err, "enrich: reconcile record %q", k)
		}
		ids[i] = &id
	}
	if skipped > 0 {
		zap.L().Warn("skipped records without vendor ids", zap.Int("count", skipped))
	}
	return ids, nil
}

// CompanyFromOrganization maps a vendor organization onto the store model.
func CompanyFromOrganization(org apollo.Organization) model.Company {
	return model.Company{
		ApolloID:           org.ID,
		Name:               org.Name,
		PrimaryDomain:      org.PrimaryDomain,
		WebsiteURL:         org.WebsiteURL,
		LinkedInURL:        org.LinkedInURL,
		LogoURL:            org.LogoURL,
		ShortDescription:   org.ShortDescription,
		Industry:           org.Industry,
		City:               org.City,
		State:              org.State,
		Country:            org.Country,
		FoundedYear:        org.FoundedYear,
		LatestFundingStage: org.LatestFundingStage,
		TotalFunding:       org.TotalFunding,
		EmployeeCount:      org.EmployeeCount,
	}
}

// DecisionMakerFromPerson maps a vendor person onto the store model under
// the given internal company id.
func DecisionMakerFromPerson(p apollo.Person, companyID int64) model.DecisionMaker {
	return model.DecisionMaker{
		ApolloID:    p.ID,
		CompanyID:   companyID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Title:       p.Title,
		Seniority:   p.Seniority,
		Headline:    p.Headline,
		Email:       p.Email,
		LinkedInURL: p.LinkedInURL,
		PhotoURL:    p.PhotoURL,
	}
}
