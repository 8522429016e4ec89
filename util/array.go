// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's util/array.go byte-array helpers, trimmed to
// the two functions the identity and origin-id paths actually call
// (Clone, CopyBlock); the teacher's Reverse/IsNull/Fill/StringList
// siblings have no caller in meshbus and were dropped.

package util

// Clone creates a new array with the same content as the argument.
func Clone(d []byte) []byte {
	r := make([]byte, len(d))
	copy(r, d)
	return r
}

// CopyBlock copies 'in' to 'out' so that 'out' is filled completely.
//   - If 'in' is larger than 'out', it is left-truncated before copy.
//   - If 'in' is smaller than 'out', it is left-padded with 0 before copy.
func CopyBlock(out, in []byte) {
	count := len(in)
	size := len(out)
	from, to := 0, 0
	if count > size {
		from = count - size
	} else if count < size {
		to = size - count
		for i := 0; i < to; i++ {
			out[i] = 0
		}
	}
	copy(out[to:], in[from:])
}
