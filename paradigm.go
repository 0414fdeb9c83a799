package simbank

// Paradigm is one of the four record categories the seeder produces.
type Paradigm string

const (
	// ParadigmProfile is a subject profile (customers, relationship managers).
	ParadigmProfile Paradigm = "profile"
	// ParadigmArchive is a dimension archive (branches, products, accounts).
	ParadigmArchive Paradigm = "archive"
	// ParadigmDocument is a business document (transactions, loans).
	ParadigmDocument Paradigm = "document"
	// ParadigmEvent is a behavioral event (app/web activity).
	ParadigmEvent Paradigm = "event"
)

// EntityType names one kind of generated record.
type EntityType string

const (
	EntityCustomer    EntityType = "customer_profile"
	EntityManager     EntityType = "manager_profile"
	EntityBranch      EntityType = "branch_archive"
	EntityProduct     EntityType = "product_archive"
	EntityDepositType EntityType = "deposit_type_archive"
	EntityAccount     EntityType = "account_archive"
	EntityTransaction EntityType = "account_transaction"
	EntityLoan        EntityType = "loan_record"
	EntityAppEvent    EntityType = "app_event"
)

// paradigms maps each entity type to its paradigm.
var paradigms = map[EntityType]Paradigm{
	EntityCustomer:    ParadigmProfile,
	EntityManager:     ParadigmProfile,
	EntityBranch:      ParadigmArchive,
	EntityProduct:     ParadigmArchive,
	EntityDepositType: ParadigmArchive,
	EntityAccount:     ParadigmArchive,
	EntityTransaction: ParadigmDocument,
	EntityLoan:        ParadigmDocument,
	EntityAppEvent:    ParadigmEvent,
}

// dependencies maps each entity type to the entity types whose identifiers
// it references. An entity type is never scheduled before, or concurrently
// with, anything it depends on.
var dependencies = map[EntityType][]EntityType{
	EntityAccount:     {EntityCustomer, EntityBranch},
	EntityTransaction: {EntityAccount},
	EntityLoan:        {EntityAccount},
	EntityAppEvent:    {EntityCustomer},
}

// ParadigmOf returns the paradigm an entity type belongs to, or "" if the
// entity type is unknown.
func ParadigmOf(et EntityType) Paradigm { return paradigms[et] }

// DependenciesOf returns the entity types et references. The returned slice
// must not be mutated.
func DependenciesOf(et EntityType) []EntityType { return dependencies[et] }

// KnownEntityTypes returns every entity type in the built-in catalog, in
// stable declaration order.
func KnownEntityTypes() []EntityType {
	return []EntityType{
		EntityCustomer, EntityManager,
		EntityBranch, EntityProduct, EntityDepositType, EntityAccount,
		EntityTransaction, EntityLoan,
		EntityAppEvent,
	}
}
