package synth

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
)

var (
	txnChannels = []string{"counter", "atm", "online_banking", "mobile_app", "third_party"}
	txnTypes    = []string{"deposit", "withdrawal", "transfer_in", "transfer_out", "consumption"}
	loanTypes   = []string{"personal_consumption", "mortgage", "car", "education", "small_business"}
)

// TransactionGenerator produces account transaction documents. Every
// transaction references an account produced earlier in the task; amounts
// follow a log-normal shape so a few large transfers dominate volume.
type TransactionGenerator struct {
	base
}

// NewTransactionGenerator creates a transaction document generator.
func NewTransactionGenerator(perDay int64) *TransactionGenerator {
	return &TransactionGenerator{base{et: simbank.EntityTransaction, prefix: "TXN", perDay: perDay}}
}

func (g *TransactionGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	accounts := req.Registry.IDs(simbank.EntityAccount)

	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		account, err := pick(rng, g.et, accounts)
		if err != nil {
			return generator.Record{}, err
		}

		amount := math.Exp(rng.NormFloat64()*1.2 + 5.5) // median ~245, heavy right tail
		return generator.Record{
			ID:     g.idAt(req.Window, n),
			BaseID: account,
			At:     timeAt(rng, req.Window),
			Fields: map[string]any{
				"amount":  math.Round(amount*100) / 100,
				"type":    txnTypes[rng.IntN(len(txnTypes))],
				"channel": txnChannels[rng.IntN(len(txnChannels))],
			},
		}, nil
	})
}

// LoanGenerator produces loan record documents referencing accounts.
type LoanGenerator struct {
	base
}

// NewLoanGenerator creates a loan document generator.
func NewLoanGenerator(perDay int64) *LoanGenerator {
	return &LoanGenerator{base{et: simbank.EntityLoan, prefix: "LOAN", perDay: perDay}}
}

func (g *LoanGenerator) NextBatch(ctx context.Context, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	accounts := req.Registry.IDs(simbank.EntityAccount)

	return g.produce(ctx, req, func(rng *rand.Rand, n int64) (generator.Record, error) {
		account, err := pick(rng, g.et, accounts)
		if err != nil {
			return generator.Record{}, err
		}

		principal := float64(10000 + rng.IntN(490)*1000)
		return generator.Record{
			ID:     g.idAt(req.Window, n),
			BaseID: account,
			At:     timeAt(rng, req.Window),
			Fields: map[string]any{
				"loan_type":   loanTypes[rng.IntN(len(loanTypes))],
				"principal":   principal,
				"term_months": 6 + rng.IntN(10)*6,
				"annual_rate": 0.03 + rng.Float64()*0.06,
			},
		}, nil
	})
}
