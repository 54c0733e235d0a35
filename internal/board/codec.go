package board

import "github.com/fxamacker/cbor/v2"

// EncodeCBOR renders the board into the opaque byte form used for
// persistence. The wire protocol uses JSON; persistence uses CBOR
// because nothing outside this service ever reads the stored blob, so
// there is no reason to pay JSON's overhead for it.
func (b Board) EncodeCBOR() ([]byte, error) {
	return cbor.Marshal(b)
}

// DecodeCBOR parses a blob produced by EncodeCBOR.
func DecodeCBOR(blob []byte) (Board, error) {
	var b Board
	if err := cbor.Unmarshal(blob, &b); err != nil {
		return Board{}, err
	}
	return b, nil
}
