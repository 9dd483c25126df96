// Package docshift declares the domain types and service interfaces of the
// docshift schema migration engine: migration identities, the history store
// contract, and the collection driver boundary the executor and index
// reconciler operate through.
//
// The concrete machinery lives in subpackages: migration (chain building,
// validation, execution), index (index reconciliation), schema (the declared
// schema model), inmem and mongo (driver and history store backends).
package docshift

// TypeField is the discriminator field on documents stored in shared
// collections. Index declarations for a shared-collection type are scoped
// by a filter on this field.
const TypeField = "_type"

// Status summarizes a chain relative to recorded history.
type Status struct {
	PendingIDs   []ID
	AppliedCount int
}

// UnitStatus pairs a migration identity with whether history records it
// as applied.
type UnitStatus struct {
	ID      ID
	Applied bool
}
