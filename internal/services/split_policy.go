// internal/services/split_policy.go
package services

import (
	"github.com/google/uuid"

	"github.com/javajoker/remix-engine/internal/config"
	"github.com/javajoker/remix-engine/internal/models"
)

// Share is one beneficiary's cut of an event, in basis points.
type Share struct {
	BeneficiaryID uuid.UUID
	TemplateID    uuid.UUID
	BasisPoints   int
}

// SplitPolicy turns a lineage chain into shares summing to
// models.FullShareBasisPoints. chain[0] is the template that was used and
// the last element is its root.
type SplitPolicy interface {
	Name() string
	Shares(chain []models.PromptTemplate) []Share
}

func NewSplitPolicy(cfg config.RoyaltyConfig) SplitPolicy {
	if cfg.Policy == config.RoyaltyPolicyDecayed {
		return &DecayedPolicy{CreatorBps: cfg.CreatorShareBps, MaxHops: cfg.MaxHops}
	}
	return &SingleHopPolicy{CreatorBps: cfg.CreatorShareBps}
}

// SingleHopPolicy pays the creator and the direct parent's owner only.
type SingleHopPolicy struct {
	CreatorBps int
}

func (p *SingleHopPolicy) Name() string { return config.RoyaltyPolicySingleHop }

func (p *SingleHopPolicy) Shares(chain []models.PromptTemplate) []Share {
	if len(chain) == 0 {
		return nil
	}
	creator := chain[0]
	if creator.IsRoot() || len(chain) == 1 {
		return []Share{{BeneficiaryID: creator.OwnerID, TemplateID: creator.ID, BasisPoints: models.FullShareBasisPoints}}
	}
	parent := chain[1]
	return mergeShares([]Share{
		{BeneficiaryID: creator.OwnerID, TemplateID: creator.ID, BasisPoints: p.CreatorBps},
		{BeneficiaryID: parent.OwnerID, TemplateID: parent.ID, BasisPoints: models.FullShareBasisPoints - p.CreatorBps},
	})
}

// DecayedPolicy pays every ancestor up to MaxHops. Each generation gets half
// of the previous one's cut of the non-creator remainder and the furthest
// paid ancestor takes whatever is left.
type DecayedPolicy struct {
	CreatorBps int
	MaxHops    int
}

func (p *DecayedPolicy) Name() string { return config.RoyaltyPolicyDecayed }

func (p *DecayedPolicy) Shares(chain []models.PromptTemplate) []Share {
	if len(chain) == 0 {
		return nil
	}
	creator := chain[0]
	if creator.IsRoot() || len(chain) == 1 {
		return []Share{{BeneficiaryID: creator.OwnerID, TemplateID: creator.ID, BasisPoints: models.FullShareBasisPoints}}
	}

	ancestors := chain[1:]
	if len(ancestors) > p.MaxHops {
		ancestors = ancestors[:p.MaxHops]
	}

	remainder := models.FullShareBasisPoints - p.CreatorBps
	shares := []Share{{BeneficiaryID: creator.OwnerID, TemplateID: creator.ID, BasisPoints: p.CreatorBps}}
	allotted := 0
	for i, ancestor := range ancestors {
		bps := remainder >> uint(i+1)
		if i == len(ancestors)-1 {
			bps = remainder - allotted
		}
		allotted += bps
		shares = append(shares, Share{BeneficiaryID: ancestor.OwnerID, TemplateID: ancestor.ID, BasisPoints: bps})
	}
	return mergeShares(shares)
}

// mergeShares folds repeated beneficiaries into their first (closest) share
// and drops empty ones.
func mergeShares(shares []Share) []Share {
	merged := make([]Share, 0, len(shares))
	index := make(map[uuid.UUID]int, len(shares))
	for _, s := range shares {
		if i, ok := index[s.BeneficiaryID]; ok {
			merged[i].BasisPoints += s.BasisPoints
			continue
		}
		index[s.BeneficiaryID] = len(merged)
		merged = append(merged, s)
	}

	out := merged[:0]
	for _, s := range merged {
		if s.BasisPoints > 0 {
			out = append(out, s)
		}
	}
	return out
}

// allocate converts shares to exact amounts of revenue. Floors are summed
// and the leftover goes to the largest share, the earliest one on a tie,
// so amounts always add up to revenue.
func allocate(revenue int64, shares []Share) []int64 {
	amounts := make([]int64, len(shares))
	if len(shares) == 0 {
		return amounts
	}

	var total int64
	largest := 0
	for i, s := range shares {
		amounts[i] = shareOf(revenue, s.BasisPoints)
		total += amounts[i]
		if s.BasisPoints > shares[largest].BasisPoints {
			largest = i
		}
	}
	amounts[largest] += revenue - total
	return amounts
}

// shareOf is floor(revenue * bps / 10000) without forming the product, which
// overflows int64 for revenue above roughly 9.2e14.
func shareOf(revenue int64, bps int) int64 {
	const full = models.FullShareBasisPoints
	return (revenue/full)*int64(bps) + (revenue%full)*int64(bps)/full
}
