package board

import (
	"encoding/json"
	"testing"
)

func digitPtr(v uint8) *Digit {
	d, err := ParseDigit(v)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestApplyBatchSetNumber(t *testing.T) {
	b := New()
	diffs := []Diff{{
		Squares:   []int{40},
		Operation: Op{Kind: OpSetNumber, Digit: digitPtr(5)},
	}}
	if err := b.ApplyBatch(diffs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Squares[40].Number == nil || *b.Squares[40].Number != 5 {
		t.Fatalf("expected square 40 to be 5, got %+v", b.Squares[40])
	}
}

func TestApplyBatchIdempotent(t *testing.T) {
	b := New()
	diffs := []Diff{{Squares: []int{0}, Operation: Op{Kind: OpSetNumber, Digit: digitPtr(5)}}}
	if err := b.ApplyBatch(diffs); err != nil {
		t.Fatal(err)
	}
	first := b.Clone()
	if err := b.ApplyBatch(diffs); err != nil {
		t.Fatal(err)
	}
	if *b.Squares[0].Number != *first.Squares[0].Number {
		t.Fatalf("re-applying setNumber should be idempotent")
	}
}

func TestApplyBatchOutOfRangeRejectsWholeBatch(t *testing.T) {
	b := New()
	diffs := []Diff{
		{Squares: []int{0}, Operation: Op{Kind: OpSetNumber, Digit: digitPtr(9)}},
		{Squares: []int{81}, Operation: Op{Kind: OpSetNumber, Digit: digitPtr(1)}},
	}
	if err := b.ApplyBatch(diffs); err == nil {
		t.Fatalf("expected malformed diff error")
	}
	if b.Squares[0].Number != nil {
		t.Fatalf("batch atomicity violated: square 0 was mutated despite rejection")
	}
}

func TestApplyBatchUnknownOpRejected(t *testing.T) {
	b := New()
	diffs := []Diff{{Squares: []int{0}, Operation: Op{Kind: "notARealOp"}}}
	if err := b.ApplyBatch(diffs); err == nil {
		t.Fatalf("expected malformed diff error for unknown op")
	}
}

func TestLockedSquareIgnoresMutations(t *testing.T) {
	b := New()
	seven := digitPtr(7)
	b.Squares[0].Number = seven
	b.Squares[0].Locked = true

	diffs := []Diff{{Squares: []int{0}, Operation: Op{Kind: OpSetNumber, Digit: digitPtr(3)}}}
	if err := b.ApplyBatch(diffs); err != nil {
		t.Fatalf("well-formed batch on a locked square should still be accepted: %v", err)
	}
	if *b.Squares[0].Number != 7 {
		t.Fatalf("locked square was mutated: got %v", *b.Squares[0].Number)
	}
}

func TestEmptyDiffListIsNoOp(t *testing.T) {
	b := New()
	if err := b.ApplyBatch([]Diff{}); err != nil {
		t.Fatalf("empty batch should be a valid no-op: %v", err)
	}
}

func TestPencilMarks(t *testing.T) {
	b := New()
	five := digitPtr(5)
	diffs := []Diff{{Squares: []int{10}, Operation: Op{Kind: OpAddPencilMark, Type: PencilCorner, Digit: five}}}
	if err := b.ApplyBatch(diffs); err != nil {
		t.Fatal(err)
	}
	if !b.Squares[10].Corners.Contains(5) {
		t.Fatalf("expected corner mark 5 to be present")
	}

	diffs = []Diff{{Squares: []int{10}, Operation: Op{Kind: OpRemovePencilMark, Type: PencilCorner, Digit: five}}}
	if err := b.ApplyBatch(diffs); err != nil {
		t.Fatal(err)
	}
	if b.Squares[10].Corners.Contains(5) {
		t.Fatalf("expected corner mark 5 to be removed")
	}

	// removing an absent mark is a no-op, not an error
	if err := b.ApplyBatch(diffs); err != nil {
		t.Fatalf("removing an absent mark should be a no-op: %v", err)
	}

	diffs = []Diff{
		{Squares: []int{10}, Operation: Op{Kind: OpAddPencilMark, Type: PencilCenter, Digit: five}},
		{Squares: []int{10}, Operation: Op{Kind: OpClearPencilMarks, Type: PencilCenter}},
	}
	if err := b.ApplyBatch(diffs); err != nil {
		t.Fatal(err)
	}
	if b.Squares[10].Centers != 0 {
		t.Fatalf("expected centers to be cleared")
	}
}

func TestDiffJSONDecodesSetNumber(t *testing.T) {
	raw := `{"squares":[40],"operation":{"fn":"setNumber","digit":5}}`
	var d Diff
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatal(err)
	}
	if d.Operation.Kind != OpSetNumber || d.Operation.Digit == nil || *d.Operation.Digit != 5 {
		t.Fatalf("decoded op mismatch: %+v", d.Operation)
	}
}

func TestDiffJSONRejectsUnknownTag(t *testing.T) {
	raw := `{"squares":[0],"operation":{"fn":"doSomethingWeird"}}`
	var d Diff
	if err := json.Unmarshal([]byte(raw), &d); err == nil {
		t.Fatalf("expected decode error for unknown op tag")
	}
}

func TestCBORRoundTrip(t *testing.T) {
	b := New()
	b.Squares[0].Number = digitPtr(9)
	b.Squares[0].Locked = true
	b.Squares[1].Corners = NewDigitSet(1, 2, 3)

	blob, err := b.EncodeCBOR()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeCBOR(blob)
	if err != nil {
		t.Fatal(err)
	}
	if *decoded.Squares[0].Number != 9 || !decoded.Squares[0].Locked {
		t.Fatalf("square 0 did not round-trip: %+v", decoded.Squares[0])
	}
	if decoded.Squares[1].Corners != NewDigitSet(1, 2, 3) {
		t.Fatalf("corners did not round-trip: %+v", decoded.Squares[1].Corners)
	}
}
