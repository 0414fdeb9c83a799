// Package synth provides the built-in deterministic entity generators for
// the nine-entity banking catalog: customer and manager profiles, branch /
// product / deposit-type / account archives, transaction and loan
// documents, and app events.
//
// Determinism contract: every record is a pure function of (entity type,
// cursor position, task seed). Record identifiers are positional, so
// ReplayIDs can rebuild the identifier registry on resume without
// re-materializing records.
package synth

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
	"github.com/xraph/simbank/schedule"
)

// Volumes configures planned record counts. Per-day volumes are scaled by
// the date weight of each covered day; fixed volumes ignore the window
// (dimension catalogs are sized, not time-distributed).
type Volumes struct {
	CustomersPerDay    int64
	ManagersPerDay     int64
	Branches           int64
	Products           int64
	DepositTypes       int64
	AccountsPerDay     int64
	TransactionsPerDay int64
	LoansPerDay        int64
	AppEventsPerDay    int64
}

// DefaultVolumes returns the volumes used by the demo seeding profile.
func DefaultVolumes() Volumes {
	return Volumes{
		CustomersPerDay:    200,
		ManagersPerDay:     10,
		Branches:           20,
		Products:           30,
		DepositTypes:       8,
		AccountsPerDay:     300,
		TransactionsPerDay: 2000,
		LoansPerDay:        60,
		AppEventsPerDay:    1500,
	}
}

// Generators returns the full built-in generator set for the given volumes.
func Generators(v Volumes) []generator.Generator {
	return []generator.Generator{
		NewCustomerGenerator(v.CustomersPerDay),
		NewManagerGenerator(v.ManagersPerDay),
		NewBranchGenerator(v.Branches),
		NewProductGenerator(v.Products),
		NewDepositTypeGenerator(v.DepositTypes),
		NewAccountGenerator(v.AccountsPerDay),
		NewTransactionGenerator(v.TransactionsPerDay),
		NewLoanGenerator(v.LoansPerDay),
		NewAppEventGenerator(v.AppEventsPerDay),
	}
}

// ──────────────────────────────────────────────────
// Shared base
// ──────────────────────────────────────────────────

// base carries the positional-identity plumbing every synth generator
// shares. perDay and fixed are mutually exclusive volume modes.
type base struct {
	et     simbank.EntityType
	prefix string
	perDay int64
	fixed  int64
}

func (b base) EntityType() simbank.EntityType { return b.et }

// idAt derives the positional record identifier. Per-day entities scope
// the position to the window start, e.g. "CUST2026031113-0000007", so
// identifiers never collide across task windows. Fixed catalogs keep
// stable identifiers, e.g. "BR0000000003": each run re-dumps the same
// dimension rows.
func (b base) idAt(w schedule.Window, n int64) string {
	if b.fixed > 0 {
		return fmt.Sprintf("%s%010d", b.prefix, n)
	}
	return fmt.Sprintf("%s%s-%07d", b.prefix, w.Start.Format("2006010215"), n)
}

// Plan returns the planned volume for the window: a fixed catalog size, or
// the per-day volume scaled by each covered day's weight and the fraction
// of the day the window overlaps.
func (b base) Plan(w schedule.Window) int64 {
	if b.fixed > 0 {
		return b.fixed
	}
	if !w.End.After(w.Start) {
		return 0
	}

	var total int64
	day := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, w.Start.Location())
	for day.Before(w.End) {
		next := day.AddDate(0, 0, 1)
		overlap := overlapHours(w, day, next)
		if overlap > 0 {
			n := int64(float64(b.perDay) * schedule.DateWeight(day) * overlap / 24.0)
			if n < 1 {
				n = 1
			}
			total += n
		}
		day = next
	}
	return total
}

// ReplayIDs re-derives the first cur.Produced identifiers for the window.
func (b base) ReplayIDs(w schedule.Window, cur checkpoint.Cursor, _ int64) []string {
	if cur.Produced <= 0 {
		return nil
	}
	ids := make([]string, cur.Produced)
	for n := range cur.Produced {
		ids[n] = b.idAt(w, n)
	}
	return ids
}

func overlapHours(w schedule.Window, dayStart, dayEnd time.Time) float64 {
	start := w.Start
	if dayStart.After(start) {
		start = dayStart
	}
	end := w.End
	if dayEnd.Before(end) {
		end = dayEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours()
}

// rng returns the deterministic random stream for one record position.
func (b base) rng(seed, pos int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(b.et))
	return rand.New(rand.NewPCG(uint64(seed)^h.Sum64(), uint64(pos)*0x9E3779B97F4A7C15))
}

// timeAt picks a deterministic logical timestamp inside the window.
func timeAt(rng *rand.Rand, w schedule.Window) time.Time {
	span := w.Duration()
	if span <= 0 {
		return w.Start
	}
	return w.Start.Add(time.Duration(rng.Int64N(int64(span))))
}

// pick returns a deterministic element of ids, or an error when the
// dependency has produced nothing — which can only happen if paradigm
// ordering was violated.
func pick(rng *rand.Rand, et simbank.EntityType, ids []string) (string, error) {
	if len(ids) == 0 {
		return "", &simbank.IntegrityError{EntityType: et}
	}
	return ids[rng.IntN(len(ids))], nil
}

// produce runs the shared batch loop: it materializes records for
// positions [cur.Produced, min(plan, cur.Produced+size)) via makeRecord
// and returns the advanced cursor.
func (b base) produce(
	ctx context.Context,
	req generator.Request,
	makeRecord func(rng *rand.Rand, n int64) (generator.Record, error),
) (*generator.Batch, checkpoint.Cursor, error) {
	plan := b.Plan(req.Window)
	cur := req.Cursor

	end := cur.Produced + int64(req.Size)
	if end > plan {
		end = plan
	}

	batch := &generator.Batch{EntityType: b.et}
	for n := cur.Produced; n < end; n++ {
		if err := ctx.Err(); err != nil {
			return nil, req.Cursor, err
		}

		rec, err := makeRecord(b.rng(req.Seed, n), n)
		if err != nil {
			return nil, req.Cursor, err
		}
		batch.Records = append(batch.Records, rec)
		cur = checkpoint.Cursor{LastID: rec.ID, LastTime: rec.At, Produced: n + 1}
	}
	return batch, cur, nil
}
