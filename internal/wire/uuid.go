package wire

import "github.com/google/uuid"

// NewMessageUUID mints a random 16-byte identifier that is not
// content-addressed the way a fragment's messageId is (spec.md §6).
// meshnode uses it for queue ids.
func NewMessageUUID() [16]byte {
	return [16]byte(uuid.New())
}

// EncodeUUID16 and DecodeUUID16 convert between the wire's 16-byte
// representation and a [16]byte value; they exist as named wire-vocabulary
// functions even though the representation is already [16]byte, to mirror
// how PutUvarint/ReadUvarint name an otherwise-trivial operation.
func EncodeUUID16(id [16]byte) []byte {
	out := make([]byte, 16)
	copy(out, id[:])
	return out
}

func DecodeUUID16(b []byte) ([16]byte, error) {
	var out [16]byte
	if len(b) != 16 {
		return out, errShortUUID
	}
	copy(out[:], b)
	return out, nil
}

var errShortUUID = uuidErr("wire: uuid16: expected 16 bytes")

type uuidErr string

func (e uuidErr) Error() string { return string(e) }
