package protocol

// Records is a batch of encoded records. Batching keeps the network
// path writev-friendly and lets a whole decode/dispatch round share
// one buffer split. Converts directly to net.Buffers.
type Records [][]byte

func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}

// Join flattens a batch into one contiguous buffer.
func (recs Records) Join() []byte {
	ret := make([]byte, 0, recs.TotalLen())
	for _, r := range recs {
		ret = append(ret, r...)
	}
	return ret
}
