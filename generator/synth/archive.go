package synth

import (
	"context"
	"math/rand/v2"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
)

var (
	productCategories = []string{"deposit", "fund", "insurance", "structured", "bond"}
	depositTerms      = []int{0, 3, 6, 12, 24, 36, 60}
	accountTypes      = []string{"current", "savings", "fixed"}
	currencies        = []string{"CNY", "CNY", "CNY", "USD", "EUR"}
)

// BranchGenerator produces the branch dimension catalog. Catalog archives
// have a fixed planned volume regardless of the task window.
type BranchGenerator struct {
	base
}

// NewBranchGenerator creates a branch archive generator.
func NewBranchGenerator(count int64) *BranchGenerator {
	return &BranchGenerator{base{et: simbank.EntityBranch, prefix: "BR", fixed: count}}
}

func (g *BranchGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		recID := g.idAt(req.Window, n)
		return generator.Record{
			ID:     recID,
			BaseID: recID,
			At:     req.Window.Start,
			Fields: map[string]any{
				"city":         cities[rng.IntN(len(cities))],
				"is_flagship":  n == 0,
				"teller_count": 4 + rng.IntN(12),
			},
		}, nil
	})
}

// ProductGenerator produces the financial product catalog.
type ProductGenerator struct {
	base
}

// NewProductGenerator creates a product archive generator.
func NewProductGenerator(count int64) *ProductGenerator {
	return &ProductGenerator{base{et: simbank.EntityProduct, prefix: "PROD", fixed: count}}
}

func (g *ProductGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		recID := g.idAt(req.Window, n)
		return generator.Record{
			ID:     recID,
			BaseID: recID,
			At:     req.Window.Start,
			Fields: map[string]any{
				"category":      productCategories[rng.IntN(len(productCategories))],
				"expected_rate": 0.01 + rng.Float64()*0.05,
				"risk_level":    1 + rng.IntN(5),
			},
		}, nil
	})
}

// DepositTypeGenerator produces the deposit type catalog.
type DepositTypeGenerator struct {
	base
}

// NewDepositTypeGenerator creates a deposit type archive generator.
func NewDepositTypeGenerator(count int64) *DepositTypeGenerator {
	return &DepositTypeGenerator{base{et: simbank.EntityDepositType, prefix: "DEP", fixed: count}}
}

func (g *DepositTypeGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		recID := g.idAt(req.Window, n)
		return generator.Record{
			ID:     recID,
			BaseID: recID,
			At:     req.Window.Start,
			Fields: map[string]any{
				"term_months": depositTerms[int(n)%len(depositTerms)],
				"base_rate":   0.002 + rng.Float64()*0.03,
			},
		}, nil
	})
}

// AccountGenerator produces account archives. Every account belongs to a
// customer and is opened at a branch, both picked deterministically from
// the identifier registry.
type AccountGenerator struct {
	base
}

// NewAccountGenerator creates an account archive generator.
func NewAccountGenerator(perDay int64) *AccountGenerator {
	return &AccountGenerator{base{et: simbank.EntityAccount, prefix: "ACCT", perDay: perDay}}
}

func (g *AccountGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	customers := req.Registry.IDs(simbank.EntityCustomer)
	branches := req.Registry.IDs(simbank.EntityBranch)

	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		customer, err := pick(rng, g.et, customers)
		if err != nil {
			return generator.Record{}, err
		}
		branch, err := pick(rng, g.et, branches)
		if err != nil {
			return generator.Record{}, err
		}

		recID := g.idAt(req.Window, n)
		return generator.Record{
			ID:     recID,
			BaseID: recID,
			At:     timeAt(rng, req.Window),
			Fields: map[string]any{
				"customer_id":  customer,
				"branch_id":    branch,
				"account_type": accountTypes[rng.IntN(len(accountTypes))],
				"currency":     currencies[rng.IntN(len(currencies))],
				"balance":      rng.Float64() * 500000,
			},
		}, nil
	})
}
