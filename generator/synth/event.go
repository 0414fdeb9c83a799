package synth

import (
	"context"
	"math/rand/v2"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
)

var (
	appEventTypes = []string{"login", "view_product", "transfer_start", "transfer_submit", "logout"}
	appChannels   = []string{"ios", "android"}
)

// AppEventGenerator produces behavioral app events referencing customers.
type AppEventGenerator struct {
	base
}

// NewAppEventGenerator creates an app event generator.
func NewAppEventGenerator(perDay int64) *AppEventGenerator {
	return &AppEventGenerator{base{et: simbank.EntityAppEvent, prefix: "EVT", perDay: perDay}}
}

func (g *AppEventGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	customers := req.Registry.IDs(simbank.EntityCustomer)

	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		customer, err := pick(rng, g.et, customers)
		if err != nil {
			return generator.Record{}, err
		}

		return generator.Record{
			ID:     g.idAt(req.Window, n),
			BaseID: customer,
			At:     timeAt(rng, req.Window),
			Fields: map[string]any{
				"event_type":  appEventTypes[rng.IntN(len(appEventTypes))],
				"channel":     appChannels[rng.IntN(len(appChannels))],
				"duration_ms": 200 + rng.IntN(30000),
			},
		}, nil
	})
}
