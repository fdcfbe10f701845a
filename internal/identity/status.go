package identity

import "fmt"

// Status is the canonical incident status shared by all mirrored systems.
//
// Statuses form a total precedence order (NEW lowest, CLOSED highest).
// Merges never move a tracked incident's status backward relative to the
// highest precedence previously observed: a lower-precedence incoming status
// is ignored for the status field but does not block other field updates.
type Status string

const (
	StatusNew                Status = "NEW"
	StatusAssigned           Status = "ASSIGNED"
	StatusWaiting            Status = "WAITING"
	StatusReadyForValidation Status = "READY_FOR_VALIDATION"
	StatusResolved           Status = "RESOLVED"
	StatusClosed             Status = "CLOSED"
)

// statusOrder maps each status to its precedence rank. Higher wins on merge.
var statusOrder = map[Status]int{
	StatusNew:                0,
	StatusAssigned:           1,
	StatusWaiting:            2,
	StatusReadyForValidation: 3,
	StatusResolved:           4,
	StatusClosed:             5,
}

// Rank returns the precedence rank of s.
// Panics on a status that did not come from ParseStatus or the constants;
// raw strings must be validated at the boundary before reaching here.
func (s Status) Rank() int {
	rank, ok := statusOrder[s]
	if !ok {
		panic(fmt.Sprintf("identity: unvalidated status %q", string(s)))
	}
	return rank
}

// String returns the canonical status name.
func (s Status) String() string { return string(s) }

// InvalidStatusError reports a status string outside the enumerated names.
// Raised at the ingestion boundary; the core only sees validated statuses.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", e.Value)
}

// ParseStatus validates a raw status string against the enumerated names.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := statusOrder[s]; !ok {
		return "", &InvalidStatusError{Value: raw}
	}
	return s, nil
}
