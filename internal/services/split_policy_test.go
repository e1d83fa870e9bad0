package services

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/remix-engine/internal/config"
	"github.com/javajoker/remix-engine/internal/models"
)

func lineageOf(owners ...uuid.UUID) []models.PromptTemplate {
	chain := make([]models.PromptTemplate, len(owners))
	for i, owner := range owners {
		chain[i] = models.PromptTemplate{ID: uuid.New(), OwnerID: owner}
	}
	for i := 0; i < len(chain)-1; i++ {
		chain[i].ParentID = &chain[i+1].ID
	}
	return chain
}

func sumBps(shares []Share) int {
	total := 0
	for _, s := range shares {
		total += s.BasisPoints
	}
	return total
}

func TestSingleHopPolicy(t *testing.T) {
	policy := NewSplitPolicy(config.RoyaltyConfig{Policy: config.RoyaltyPolicySingleHop, CreatorShareBps: 9000})
	creator, parent, grandparent := uuid.New(), uuid.New(), uuid.New()

	shares := policy.Shares(lineageOf(creator))
	assert.Equal(t, []Share{{BeneficiaryID: creator, TemplateID: shares[0].TemplateID, BasisPoints: 10000}}, shares)

	chain := lineageOf(creator, parent, grandparent)
	shares = policy.Shares(chain)
	assert.Len(t, shares, 2)
	assert.Equal(t, creator, shares[0].BeneficiaryID)
	assert.Equal(t, chain[0].ID, shares[0].TemplateID)
	assert.Equal(t, 9000, shares[0].BasisPoints)
	assert.Equal(t, parent, shares[1].BeneficiaryID)
	assert.Equal(t, chain[1].ID, shares[1].TemplateID)
	assert.Equal(t, 1000, shares[1].BasisPoints)

	// remixing your own template keeps the whole share in one entry
	shares = policy.Shares(lineageOf(creator, creator))
	assert.Len(t, shares, 1)
	assert.Equal(t, 10000, shares[0].BasisPoints)
}

func TestDecayedPolicy(t *testing.T) {
	policy := NewSplitPolicy(config.RoyaltyConfig{Policy: config.RoyaltyPolicyDecayed, CreatorShareBps: 9000, MaxHops: 3})
	a, b, c, d, e := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	shares := policy.Shares(lineageOf(a, b))
	assert.Equal(t, []int{9000, 1000}, bpsOf(shares))

	shares = policy.Shares(lineageOf(a, b, c))
	assert.Equal(t, []int{9000, 500, 500}, bpsOf(shares))

	shares = policy.Shares(lineageOf(a, b, c, d, e))
	assert.Equal(t, []int{9000, 500, 250, 250}, bpsOf(shares))
	assert.Equal(t, d, shares[3].BeneficiaryID)

	shares = policy.Shares(lineageOf(a, b, a))
	assert.Equal(t, []int{9500, 500}, bpsOf(shares))
	assert.Equal(t, 10000, sumBps(shares))
}

func bpsOf(shares []Share) []int {
	out := make([]int, len(shares))
	for i, s := range shares {
		out[i] = s.BasisPoints
	}
	return out
}

func TestAllocateIsExact(t *testing.T) {
	shares := []Share{{BasisPoints: 9000}, {BasisPoints: 1000}}
	assert.Equal(t, []int64{900, 100}, allocate(1000, shares))
	assert.Equal(t, []int64{901, 100}, allocate(1001, shares))
	assert.Equal(t, []int64{1, 0}, allocate(1, shares))

	thirds := []Share{{BasisPoints: 3334}, {BasisPoints: 3333}, {BasisPoints: 3333}}
	amounts := allocate(100, thirds)
	assert.Equal(t, []int64{34, 33, 33}, amounts)

	// ties go to the earliest share
	halves := []Share{{BasisPoints: 5000}, {BasisPoints: 5000}}
	assert.Equal(t, []int64{2, 1}, allocate(3, halves))

	for _, revenue := range []int64{1, 7, 99, 1000, 123457} {
		var total int64
		for _, a := range allocate(revenue, []Share{{BasisPoints: 9000}, {BasisPoints: 500}, {BasisPoints: 250}, {BasisPoints: 250}}) {
			total += a
		}
		assert.Equal(t, revenue, total)
	}
}

func TestAllocateLargeRevenue(t *testing.T) {
	shares := []Share{{BasisPoints: 9000}, {BasisPoints: 750}, {BasisPoints: 250}}

	for _, revenue := range []int64{1e15, math.MaxInt64 / 2, math.MaxInt64} {
		amounts := allocate(revenue, shares)

		var total int64
		for _, a := range amounts {
			assert.GreaterOrEqual(t, a, int64(0))
			total += a
		}
		assert.Equal(t, revenue, total)
		assert.Equal(t, revenue/10000*250+revenue%10000*250/10000, amounts[2])
	}

	assert.Equal(t, []int64{900_000_000_000_000, 75_000_000_000_000, 25_000_000_000_000}, allocate(1e15, shares))
}

func TestSharesOfRootTemplate(t *testing.T) {
	owner := uuid.New()
	root := models.PromptTemplate{ID: uuid.New(), OwnerID: owner}
	require.True(t, root.IsRoot())

	for _, policy := range []SplitPolicy{
		NewSplitPolicy(config.RoyaltyConfig{Policy: config.RoyaltyPolicySingleHop, CreatorShareBps: 9000}),
		NewSplitPolicy(config.RoyaltyConfig{Policy: config.RoyaltyPolicyDecayed, CreatorShareBps: 9000, MaxHops: 4}),
	} {
		shares := policy.Shares([]models.PromptTemplate{root})
		assert.Equal(t, []Share{{BeneficiaryID: owner, TemplateID: root.ID, BasisPoints: models.FullShareBasisPoints}}, shares, policy.Name())
		assert.Nil(t, policy.Shares(nil), policy.Name())
	}
}
