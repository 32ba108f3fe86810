package wire

import "encoding/hex"

// HexEncode and HexDecode are thin, named wrappers around the standard hex
// codec so call sites read as part of the wire vocabulary. meshnode uses
// HexEncode to turn 16-byte message and queue ids into string keys; the
// JSON control envelope does not pass through these helpers.
func HexEncode(b []byte) string { return hex.EncodeToString(b) }

func HexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }
