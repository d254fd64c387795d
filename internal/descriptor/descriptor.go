// Package descriptor defines the binary feature descriptors the matching
// engine operates on. A Descriptor is opaque to the rest of the system
// except for its distance function.
package descriptor

import (
	"bytes"
	"encoding/gob"
	"math/bits"
)

// Length is the descriptor size in bytes (256-bit binary descriptors).
const Length = 32

// Descriptor is a fixed-length binary feature vector describing one local
// image patch. It is immutable once produced.
type Descriptor []byte

// Set is the ordered sequence of descriptors extracted from one image.
// A nil or empty Set is a valid degenerate value (extraction found nothing).
type Set []Descriptor

// DistanceFunc computes the distance between two descriptors. It must induce
// a total order over pairwise distances so that ties can be broken
// deterministically.
type DistanceFunc func(a, b Descriptor) int

// Hamming returns the number of differing bits between a and b. Both
// descriptors must have the same length; extra bytes on the longer one are
// counted as fully set, which keeps the function total without panicking on
// malformed input.
func Hamming(a, b Descriptor) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var d int
	for i := 0; i < n; i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	for i := n; i < len(a); i++ {
		d += 8
	}
	for i := n; i < len(b); i++ {
		d += 8
	}
	return d
}

// Clone returns a deep copy of the set. Entries of the copy do not alias the
// original's storage.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for i, d := range s {
		c := make(Descriptor, len(d))
		copy(c, d)
		out[i] = c
	}
	return out
}

// serialization format version; bump when the encoded layout changes.
const encodingVersion = 1

// Marshal encodes the set for catalog persistence.
func (s Set) Marshal() ([]byte, error) {
	buffer := new(bytes.Buffer)
	encoder := gob.NewEncoder(buffer)
	if err := encoder.Encode(encodingVersion); err != nil {
		return nil, err
	}
	raw := make([][]byte, len(s))
	for i, d := range s {
		raw[i] = d
	}
	if err := encoder.Encode(raw); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Unmarshal decodes a set previously produced by Marshal.
func Unmarshal(data []byte) (Set, error) {
	decoder := gob.NewDecoder(bytes.NewBuffer(data))
	var version int
	if err := decoder.Decode(&version); err != nil {
		return nil, err
	}
	// So far, all previous versions accepted.
	var raw [][]byte
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	set := make(Set, len(raw))
	for i, d := range raw {
		set[i] = Descriptor(d)
	}
	return set, nil
}
