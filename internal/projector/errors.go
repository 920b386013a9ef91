package projector

import (
	"errors"
	"fmt"

	"ndisview/internal/model"
)

var (
	ErrUnknownRole      = errors.New("unknown role")
	ErrUnknownMode      = errors.New("unknown query mode")
	ErrRecordNotFound   = errors.New("record not found")
	ErrNotPermitted     = errors.New("action not permitted")
	ErrNotAdministrator = errors.New("caller is not the contract administrator")
)

// MalformedRecordError reports a record missing or carrying an invalid
// required field. Index is the record's position in the input.
type MalformedRecordError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("record %d: malformed field %q: %s", e.Index, e.Field, e.Reason)
}

// UnknownStatusError reports a status outside the enumerated domain for the
// record's kind, or a record carrying no status at all.
type UnknownStatusError struct {
	Index int
	Key   Key
	Kind  model.Kind
	Code  *int
}

func (e *UnknownStatusError) Error() string {
	if e.Code == nil {
		return fmt.Sprintf("record %d (key %s): no status for %s", e.Index, e.Key, e.Kind)
	}
	return fmt.Sprintf("record %d (key %s): unknown status %d for %s", e.Index, e.Key, *e.Code, e.Kind)
}

// PolicyDenial is the result of an action withheld by policy rather than by
// record state. It is attached to rows and returned by Authorize.
type PolicyDenial struct {
	Action model.Action `json:"action"`
	Reason string       `json:"reason"`
}

func (d PolicyDenial) Error() string {
	return fmt.Sprintf("%s withheld: %s", d.Action, d.Reason)
}

func (d PolicyDenial) Unwrap() error { return ErrNotAdministrator }
