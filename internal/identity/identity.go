// Package identity defines the value types that name incidents across
// external systems: system identifiers, incident keys, binding identifiers,
// and the canonical status lattice.
//
// All types are immutable values with equality by content. They carry no
// behavior beyond rendering and validation; the merge and reconciliation
// logic lives in the snapshot and engine packages.
package identity

import "fmt"

// SystemID identifies one external system instance - a platform plus tenant,
// e.g. "glpi:v11" or "glpi:sf". Equality is by the underlying name.
type SystemID string

// String returns the raw system name.
func (s SystemID) String() string { return string(s) }

// IncidentKey identifies one incident as known to one system.
//
// The string form "{system}:{vendor_key}" is the primary lookup key for
// snapshots. The system name may itself contain colons, so the string form
// is render-only - components that need the parts keep the struct.
type IncidentKey struct {
	System    SystemID
	VendorKey string
}

// String renders the composite key, e.g. "glpi:v11:123".
func (k IncidentKey) String() string {
	return fmt.Sprintf("%s:%s", k.System, k.VendorKey)
}

// BindingID identifies a directed mirroring relationship from one system's
// view of an incident to another system.
type BindingID struct {
	Origin       IncidentKey
	TargetSystem SystemID
}

// String renders the binding identifier, e.g. "glpi:v11:123::glpi:sf".
func (b BindingID) String() string {
	return fmt.Sprintf("%s::%s", b.Origin, b.TargetSystem)
}
