package symbol

import "fmt"

// CorruptUnitError reports that one compilation unit's debug data could
// not be decoded. It scopes the damage: only addresses owned by that unit
// degrade to symbol-table or unknown results.
type CorruptUnitError struct {
	Unit int
	Err  error
}

func (e *CorruptUnitError) Error() string {
	return fmt.Sprintf("compilation unit %d: %v", e.Unit, e.Err)
}

func (e *CorruptUnitError) Unwrap() error { return e.Err }
