package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/registry"
)

func TestRegister_PreservesProductionOrder(t *testing.T) {
	r := registry.New()
	r.Register(simbank.EntityCustomer, "CUST1", "CUST2")
	r.Register(simbank.EntityCustomer, "CUST3")

	ids := r.IDs(simbank.EntityCustomer)
	want := []string{"CUST1", "CUST2", "CUST3"}
	if len(ids) != len(want) {
		t.Fatalf("IDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestRegister_IgnoresDuplicates(t *testing.T) {
	r := registry.New()
	r.Register(simbank.EntityBranch, "BR1", "BR1", "BR2")
	r.Register(simbank.EntityBranch, "BR2")

	if got := r.Count(simbank.EntityBranch); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestHas_ScopedByEntityType(t *testing.T) {
	r := registry.New()
	r.Register(simbank.EntityCustomer, "CUST1")

	if !r.Has(simbank.EntityCustomer, "CUST1") {
		t.Error("Has(customer, CUST1) = false, want true")
	}
	if r.Has(simbank.EntityManager, "CUST1") {
		t.Error("identifier must not leak across entity types")
	}
	if r.Has(simbank.EntityCustomer, "CUST99") {
		t.Error("Has must be false for unknown identifiers")
	}
}

func TestRegister_ConcurrentUse(t *testing.T) {
	r := registry.New()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				r.Register(simbank.EntityAccount, fmt.Sprintf("ACCT-%d-%d", g, i))
			}
		}()
	}
	wg.Wait()

	if got := r.Count(simbank.EntityAccount); got != 800 {
		t.Errorf("Count() = %d, want 800", got)
	}
}
