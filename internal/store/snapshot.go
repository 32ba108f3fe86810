package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/fragment"
	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/priority"
	"rubin.dev/mesh/internal/routing"
	"rubin.dev/mesh/internal/wire"
)

// Snapshots are plain binary records, the same hand-rolled packing style
// the wire package uses for on-air frames, kept deliberately separate from
// it: these bytes never leave the node, so there is no duty-cycle budget
// or dictionary/compression concern, only a stable on-disk layout.

func putString(dst []byte, s string) []byte {
	dst = wire.PutUvarint(dst, uint32(len(s)))
	return append(dst, s...)
}

func readString(b []byte) (string, int, error) {
	n, used, err := wire.ReadUvarint(b)
	if err != nil {
		return "", 0, err
	}
	if used+int(n) > len(b) {
		return "", 0, fmt.Errorf("store: truncated string")
	}
	return string(b[used : used+int(n)]), used + int(n), nil
}

func putBytes(dst []byte, v []byte) []byte {
	dst = wire.PutUvarint(dst, uint32(len(v)))
	return append(dst, v...)
}

func readBytes(b []byte) ([]byte, int, error) {
	n, used, err := wire.ReadUvarint(b)
	if err != nil {
		return nil, 0, err
	}
	if used+int(n) > len(b) {
		return nil, 0, fmt.Errorf("store: truncated bytes")
	}
	out := append([]byte(nil), b[used:used+int(n)]...)
	return out, used + int(n), nil
}

func putFloat64(dst []byte, f float64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
	return append(dst, tmp[:]...)
}

func readFloat64(b []byte) (float64, int, error) {
	if len(b) < 8 {
		return 0, 0, fmt.Errorf("store: truncated float64")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:8])), 8, nil
}

func putTime(dst []byte, t time.Time) []byte {
	return wire.PutUvarint64(dst, uint64(t.UnixNano()))
}

func readTime(b []byte) (time.Time, int, error) {
	n, used, err := wire.ReadUvarint64(b)
	if err != nil {
		return time.Time{}, 0, err
	}
	return time.Unix(0, int64(n)), used, nil
}

// --- Routing table snapshot ---

// EncodeRouteEntry packs one routing.Entry for persistence.
func EncodeRouteEntry(e routing.Entry) []byte {
	var b []byte
	b = putString(b, e.Destination)
	b = putString(b, e.NextHop)
	b = wire.PutUvarint(b, uint32(e.HopCount))
	b = wire.PutUvarint64(b, e.Sequence)
	b = wire.PutUvarint(b, uint32(e.NodeType))
	b = putFloat64(b, e.UTXOSetCompleteness)
	b = wire.PutUvarint64(b, e.BlockchainHeight)
	b = putFloat64(b, e.LinkQuality)
	b = putTime(b, e.LastUTXOSync)
	b = putTime(b, e.InstalledAt)
	b = putTime(b, e.LastRefresh)
	if e.IsActive {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	return b
}

// DecodeRouteEntry unpacks a routing.Entry previously written by
// EncodeRouteEntry.
func DecodeRouteEntry(b []byte) (routing.Entry, error) {
	var e routing.Entry
	var used int
	var err error
	if e.Destination, used, err = readString(b); err != nil {
		return e, err
	}
	b = b[used:]
	if e.NextHop, used, err = readString(b); err != nil {
		return e, err
	}
	b = b[used:]
	var v uint32
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return e, err
	}
	e.HopCount = int(v)
	b = b[used:]
	var v64 uint64
	if v64, used, err = wire.ReadUvarint64(b); err != nil {
		return e, err
	}
	e.Sequence = v64
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return e, err
	}
	e.NodeType = routing.NodeType(v)
	b = b[used:]
	if e.UTXOSetCompleteness, used, err = readFloat64(b); err != nil {
		return e, err
	}
	b = b[used:]
	if v64, used, err = wire.ReadUvarint64(b); err != nil {
		return e, err
	}
	e.BlockchainHeight = v64
	b = b[used:]
	if e.LinkQuality, used, err = readFloat64(b); err != nil {
		return e, err
	}
	b = b[used:]
	if e.LastUTXOSync, used, err = readTime(b); err != nil {
		return e, err
	}
	b = b[used:]
	if e.InstalledAt, used, err = readTime(b); err != nil {
		return e, err
	}
	b = b[used:]
	if e.LastRefresh, used, err = readTime(b); err != nil {
		return e, err
	}
	b = b[used:]
	if len(b) < 1 {
		return e, fmt.Errorf("store: truncated route entry active flag")
	}
	e.IsActive = b[0] == 1
	return e, nil
}

// --- Priority queue message snapshot ---

// EncodeMessage packs one priority.Message for persistence.
func EncodeMessage(m *priority.Message) []byte {
	var b []byte
	b = putBytes(b, m.Payload)
	b = wire.PutUvarint(b, uint32(m.Priority))
	if m.EmergencyFlag {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = wire.PutUvarint64(b, m.Fee)
	b = wire.PutUvarint(b, uint32(m.EstimatedSizeBytes))
	b = wire.PutUvarint(b, uint32(m.InputCount))
	b = wire.PutUvarint(b, uint32(m.OutputCount))
	b = putTime(b, m.CreatedAt)
	b = wire.PutUvarint64(b, uint64(m.TTL))
	b = wire.PutUvarint(b, uint32(m.RetryCount))
	b = wire.PutUvarint(b, uint32(m.MaxRetries))
	b = putString(b, m.QueueID)
	if m.CompressionApplied {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = wire.PutUvarint(b, uint32(m.MsgType))
	b = wire.PutUvarint64(b, m.BlockHeight)
	return b
}

// DecodeMessage unpacks a priority.Message previously written by
// EncodeMessage.
func DecodeMessage(b []byte) (*priority.Message, error) {
	m := &priority.Message{}
	var used int
	var err error
	if m.Payload, used, err = readBytes(b); err != nil {
		return nil, err
	}
	b = b[used:]
	var v uint32
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return nil, err
	}
	m.Priority = meshtransport.MessagePriority(v)
	b = b[used:]
	if len(b) < 1 {
		return nil, fmt.Errorf("store: truncated message emergency flag")
	}
	m.EmergencyFlag = b[0] == 1
	b = b[1:]
	var v64 uint64
	if v64, used, err = wire.ReadUvarint64(b); err != nil {
		return nil, err
	}
	m.Fee = v64
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return nil, err
	}
	m.EstimatedSizeBytes = int(v)
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return nil, err
	}
	m.InputCount = int(v)
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return nil, err
	}
	m.OutputCount = int(v)
	b = b[used:]
	if m.CreatedAt, used, err = readTime(b); err != nil {
		return nil, err
	}
	b = b[used:]
	if v64, used, err = wire.ReadUvarint64(b); err != nil {
		return nil, err
	}
	m.TTL = time.Duration(v64)
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return nil, err
	}
	m.RetryCount = int(v)
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return nil, err
	}
	m.MaxRetries = int(v)
	b = b[used:]
	if m.QueueID, used, err = readString(b); err != nil {
		return nil, err
	}
	b = b[used:]
	if len(b) < 1 {
		return nil, fmt.Errorf("store: truncated message compression flag")
	}
	m.CompressionApplied = b[0] == 1
	b = b[1:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return nil, err
	}
	m.MsgType = meshtransport.MessageType(v)
	b = b[used:]
	if v64, _, err = wire.ReadUvarint64(b); err != nil {
		return nil, err
	}
	m.BlockHeight = v64
	return m, nil
}

// --- Transmission record snapshot ---

// EncodeTransmissionRecord packs one dutycycle.TransmissionRecord.
func EncodeTransmissionRecord(r dutycycle.TransmissionRecord) []byte {
	var b []byte
	b = wire.PutUvarint64(b, uint64(r.StartMs))
	b = wire.PutUvarint64(b, uint64(r.DurationMs))
	b = putFloat64(b, r.Frequency)
	b = putFloat64(b, r.PowerLevel)
	b = wire.PutUvarint(b, uint32(r.MessageType))
	return b
}

// DecodeTransmissionRecord unpacks a dutycycle.TransmissionRecord.
func DecodeTransmissionRecord(b []byte) (dutycycle.TransmissionRecord, error) {
	var r dutycycle.TransmissionRecord
	var used int
	var err error
	var v64 uint64
	if v64, used, err = wire.ReadUvarint64(b); err != nil {
		return r, err
	}
	r.StartMs = int64(v64)
	b = b[used:]
	if v64, used, err = wire.ReadUvarint64(b); err != nil {
		return r, err
	}
	r.DurationMs = int64(v64)
	b = b[used:]
	if r.Frequency, used, err = readFloat64(b); err != nil {
		return r, err
	}
	b = b[used:]
	if r.PowerLevel, used, err = readFloat64(b); err != nil {
		return r, err
	}
	b = b[used:]
	var v uint32
	if v, _, err = wire.ReadUvarint(b); err != nil {
		return r, err
	}
	r.MessageType = meshtransport.MessageType(v)
	return r, nil
}

// --- Reassembly session snapshot ---

// EncodeSessionSnapshot packs one fragment.SessionSnapshot.
func EncodeSessionSnapshot(s fragment.SessionSnapshot) []byte {
	var b []byte
	b = append(b, s.MessageID[:]...)
	b = putString(b, s.Origin)
	b = wire.PutUvarint(b, uint32(s.TotalFragments))
	b = wire.PutUvarint(b, uint32(len(s.Received)))
	for _, seq := range s.Received {
		b = wire.PutUvarint(b, uint32(seq))
		b = putBytes(b, s.Payloads[seq])
	}
	b = putTime(b, s.CreatedAt)
	b = putTime(b, s.LastActivity)
	b = putTime(b, s.TimeoutAt)
	b = wire.PutUvarint(b, uint32(s.RetryCount))
	b = wire.PutUvarint(b, uint32(s.State))
	b = wire.PutUvarint(b, uint32(s.Priority))
	b = wire.PutUvarint(b, uint32(s.MsgType))
	return b
}

// DecodeSessionSnapshot unpacks a fragment.SessionSnapshot.
func DecodeSessionSnapshot(b []byte) (fragment.SessionSnapshot, error) {
	var s fragment.SessionSnapshot
	if len(b) < 16 {
		return s, fmt.Errorf("store: truncated session message id")
	}
	copy(s.MessageID[:], b[:16])
	b = b[16:]
	var used int
	var err error
	if s.Origin, used, err = readString(b); err != nil {
		return s, err
	}
	b = b[used:]
	var v uint32
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return s, err
	}
	s.TotalFragments = uint16(v)
	b = b[used:]
	var count uint32
	if count, used, err = wire.ReadUvarint(b); err != nil {
		return s, err
	}
	b = b[used:]
	s.Received = make([]uint16, 0, count)
	s.Payloads = make(map[uint16][]byte, count)
	for i := uint32(0); i < count; i++ {
		if v, used, err = wire.ReadUvarint(b); err != nil {
			return s, err
		}
		seq := uint16(v)
		b = b[used:]
		var payload []byte
		if payload, used, err = readBytes(b); err != nil {
			return s, err
		}
		b = b[used:]
		s.Received = append(s.Received, seq)
		s.Payloads[seq] = payload
	}
	if s.CreatedAt, used, err = readTime(b); err != nil {
		return s, err
	}
	b = b[used:]
	if s.LastActivity, used, err = readTime(b); err != nil {
		return s, err
	}
	b = b[used:]
	if s.TimeoutAt, used, err = readTime(b); err != nil {
		return s, err
	}
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return s, err
	}
	s.RetryCount = int(v)
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return s, err
	}
	s.State = fragment.SessionState(v)
	b = b[used:]
	if v, used, err = wire.ReadUvarint(b); err != nil {
		return s, err
	}
	s.Priority = meshtransport.MessagePriority(v)
	b = b[used:]
	if v, _, err = wire.ReadUvarint(b); err != nil {
		return s, err
	}
	s.MsgType = meshtransport.MessageType(v)
	return s, nil
}
