package wire

import "fmt"

// AddressInterner assigns each distinct address string the next 32-bit id
// on first sight within a session, and remembers the mapping so later
// encodes reuse the id and decodes can reverse it (spec.md §4.B). It is not
// safe for concurrent use; callers serialize access the way every other
// mesh-transport component does (spec.md §5).
type AddressInterner struct {
	forward map[string]uint32
	reverse []string
}

// NewAddressInterner returns an empty interning table.
func NewAddressInterner() *AddressInterner {
	return &AddressInterner{forward: make(map[string]uint32)}
}

// Intern returns the id for addr, assigning the next sequential id if addr
// has not been seen before in this session.
func (a *AddressInterner) Intern(addr string) uint32 {
	if id, ok := a.forward[addr]; ok {
		return id
	}
	id := uint32(len(a.reverse))
	a.forward[addr] = id
	a.reverse = append(a.reverse, addr)
	return id
}

// Resolve reverses an id back to its address. It fails if id was never
// assigned in this session (e.g. decoding out of order against a fresh
// interner, or a corrupt id).
func (a *AddressInterner) Resolve(id uint32) (string, error) {
	if int(id) >= len(a.reverse) {
		return "", fmt.Errorf("wire: address intern: unknown id %d", id)
	}
	return a.reverse[id], nil
}

// Len reports how many distinct addresses have been interned.
func (a *AddressInterner) Len() int { return len(a.reverse) }
