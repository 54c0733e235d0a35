package board

import (
	"encoding/json"
	"fmt"
)

// OpKind names one of the four diff operations a client may send.
type OpKind string

const (
	OpSetNumber        OpKind = "setNumber"
	OpAddPencilMark    OpKind = "addPencilMark"
	OpRemovePencilMark OpKind = "removePencilMark"
	OpClearPencilMarks OpKind = "clearPencilMarks"
)

// PencilType selects which of a square's two pencil-mark sets an op targets.
type PencilType string

const (
	PencilCenter PencilType = "centers"
	PencilCorner PencilType = "corners"
)

// Op is the tagged-union payload of a Diff. Only the fields relevant to
// Kind are meaningful; the rest are left at their zero value.
type Op struct {
	Kind  OpKind
	Digit *Digit
	Type  PencilType
}

// opWire is the on-the-wire shape of Op: a flat object discriminated by "fn".
type opWire struct {
	Fn     OpKind     `json:"fn"`
	Digit  *Digit     `json:"digit,omitempty"`
	Type   PencilType `json:"type,omitempty"`
}

func (o Op) MarshalJSON() ([]byte, error) {
	return json.Marshal(opWire{Fn: o.Kind, Digit: o.Digit, Type: o.Type})
}

// ErrMalformedDiff reports a diff that fails the apply contract: an
// out-of-range square index, an unknown operation tag, or a payload
// missing a field the tag requires.
type ErrMalformedDiff struct {
	Reason string
}

func (e *ErrMalformedDiff) Error() string {
	return fmt.Sprintf("malformed diff: %s", e.Reason)
}

func (o *Op) UnmarshalJSON(data []byte) error {
	var wire opWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return &ErrMalformedDiff{Reason: err.Error()}
	}
	switch wire.Fn {
	case OpSetNumber:
		// digit is nullable for setNumber; absence of the field and an
		// explicit null both mean "clear the number".
	case OpAddPencilMark, OpRemovePencilMark:
		if wire.Digit == nil {
			return &ErrMalformedDiff{Reason: fmt.Sprintf("%s requires a digit", wire.Fn)}
		}
		if wire.Type != PencilCenter && wire.Type != PencilCorner {
			return &ErrMalformedDiff{Reason: fmt.Sprintf("%q is not a valid pencil mark type", wire.Type)}
		}
	case OpClearPencilMarks:
		if wire.Type != PencilCenter && wire.Type != PencilCorner {
			return &ErrMalformedDiff{Reason: fmt.Sprintf("%q is not a valid pencil mark type", wire.Type)}
		}
	default:
		return &ErrMalformedDiff{Reason: fmt.Sprintf("%q is not a known operation", wire.Fn)}
	}
	o.Kind = wire.Fn
	o.Digit = wire.Digit
	o.Type = wire.Type
	return nil
}

// Diff names the squares an operation should be applied to.
type Diff struct {
	Squares   []int `json:"squares"`
	Operation Op    `json:"operation"`
}
