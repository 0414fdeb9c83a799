package synth

import (
	"context"
	"math/rand/v2"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
)

var (
	surnames   = []string{"Li", "Wang", "Zhang", "Liu", "Chen", "Yang", "Zhao", "Huang", "Zhou", "Wu"}
	givenNames = []string{"Wei", "Fang", "Min", "Jing", "Lei", "Qiang", "Yan", "Jun", "Ping", "Hua"}
	cities     = []string{"Beijing", "Shanghai", "Guangzhou", "Shenzhen", "Chengdu", "Hangzhou", "Wuhan", "Nanjing"}
)

// CustomerGenerator produces customer subject profiles. Roughly one in
// eight customers is VIP, which downstream generators use to skew amounts.
type CustomerGenerator struct {
	base
}

// NewCustomerGenerator creates a customer profile generator.
func NewCustomerGenerator(perDay int64) *CustomerGenerator {
	return &CustomerGenerator{base{et: simbank.EntityCustomer, prefix: "CUST", perDay: perDay}}
}

func (g *CustomerGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		recID := g.idAt(req.Window, n)
		return generator.Record{
			ID:     recID,
			BaseID: recID,
			At:     timeAt(rng, req.Window),
			Fields: map[string]any{
				"name":       surnames[rng.IntN(len(surnames))] + " " + givenNames[rng.IntN(len(givenNames))],
				"city":       cities[rng.IntN(len(cities))],
				"age":        18 + rng.IntN(62),
				"is_vip":     rng.IntN(8) == 0,
				"risk_level": 1 + rng.IntN(5),
			},
		}, nil
	})
}

// ManagerGenerator produces relationship manager profiles.
type ManagerGenerator struct {
	base
}

// NewManagerGenerator creates a manager profile generator.
func NewManagerGenerator(perDay int64) *ManagerGenerator {
	return &ManagerGenerator{base{et: simbank.EntityManager, prefix: "MGR", perDay: perDay}}
}

func (g *ManagerGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		recID := g.idAt(req.Window, n)
		return generator.Record{
			ID:     recID,
			BaseID: recID,
			At:     timeAt(rng, req.Window),
			Fields: map[string]any{
				"name":         surnames[rng.IntN(len(surnames))] + " " + givenNames[rng.IntN(len(givenNames))],
				"city":         cities[rng.IntN(len(cities))],
				"vip_capacity": 20 + rng.IntN(30),
				"capacity":     150 + rng.IntN(100),
			},
		}, nil
	})
}
