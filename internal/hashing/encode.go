package hashing

// EncodeBucketElement derives the field element (< plainModulus) that
// represents a bucket slot, per the normative encoding in the
// specification:
//
//   - occupied: ((input >> m) << 2) | hashIndex, where hashIndex is 0, 1 or 2.
//   - empty: 3 | (roleBit << 2), where roleBit is 1 for the receiver's
//     empty slots and 0 for the sender's, so that receiver-empty and
//     sender-empty encodings never collide with each other or with any
//     occupied encoding (whose low two bits are never both set, since
//     hashIndex <= 2).
//
// inputs is the caller's original input vector, indexed by slot.InputIndex
// when slot is occupied.
func EncodeBucketElement(inputs []uint64, slot Slot, m uint, isReceiver bool) uint64 {
	if !slot.Empty() {
		if slot.HashIndex >= HashFunctions {
			panic("hashing: occupied slot carries an out-of-range hash-function index")
		}
		return ((inputs[slot.InputIndex] >> m) << 2) | uint64(slot.HashIndex)
	}

	var roleBit uint64
	if isReceiver {
		roleBit = 1
	}
	return 3 | (roleBit << 2)
}
