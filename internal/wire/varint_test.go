package wire

import "testing"

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 16384, 1<<28 - 1, 1<<32 - 1}
	for _, v := range cases {
		enc := PutUvarint(nil, v)
		if len(enc) == 0 || len(enc) > 5 {
			t.Fatalf("PutUvarint(%d) length = %d, want 1-5", v, len(enc))
		}
		got, n, err := ReadUvarint(enc)
		if err != nil {
			t.Fatalf("ReadUvarint(%d): %v", v, err)
		}
		if n != len(enc) || got != v {
			t.Fatalf("ReadUvarint round trip: got (%d,%d), want (%d,%d)", got, n, v, len(enc))
		}
	}
}

func TestReadUvarintTruncated(t *testing.T) {
	if _, _, err := ReadUvarint([]byte{0x80, 0x80}); err == nil {
		t.Fatalf("expected error on truncated varint")
	}
}
