package ws

// applyMask XORs data with key repeated across its length (RFC 6455 §5.3).
// The operation is its own inverse, so the same function masks on write and
// unmasks on read.
func applyMask(data []byte, key [4]byte) {
	for i := range data {
		data[i] ^= key[i%4]
	}
}
