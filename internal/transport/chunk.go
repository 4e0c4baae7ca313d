package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultChunkSize keeps each DataChannel message well under the SCTP
// message size limit.
const DefaultChunkSize = 16 * 1024

// chunk header: message id, chunk index, chunk count (big endian uint32).
const chunkHeaderLen = 12

// ErrMalformedChunk is returned by Reassembler.Add for unusable chunks.
var ErrMalformedChunk = errors.New("transport: malformed chunk")

// SplitMessage cuts data into chunks of at most size payload bytes, each
// prefixed with a header naming id, its index and the chunk count.
func SplitMessage(id uint32, data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	count := (len(data) + size - 1) / size
	if count == 0 {
		count = 1
	}

	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		msg := make([]byte, chunkHeaderLen+end-start)
		binary.BigEndian.PutUint32(msg[0:4], id)
		binary.BigEndian.PutUint32(msg[4:8], uint32(i))
		binary.BigEndian.PutUint32(msg[8:12], uint32(count))
		copy(msg[chunkHeaderLen:], data[start:end])
		chunks = append(chunks, msg)
	}
	return chunks
}

// Reassembler rebuilds messages cut by SplitMessage. Chunks must arrive in
// order; a chunk of a new message abandons any incomplete one.
type Reassembler struct {
	id     uint32
	count  uint32
	next   uint32
	buf    []byte
	active bool
}

// Add feeds one chunk. It returns the full message once its last chunk
// arrived.
func (r *Reassembler) Add(msg []byte) ([]byte, bool, error) {
	if len(msg) < chunkHeaderLen {
		r.reset()
		return nil, false, fmt.Errorf("%w: %d bytes", ErrMalformedChunk, len(msg))
	}
	id := binary.BigEndian.Uint32(msg[0:4])
	index := binary.BigEndian.Uint32(msg[4:8])
	count := binary.BigEndian.Uint32(msg[8:12])
	body := msg[chunkHeaderLen:]

	if count == 0 || index >= count {
		r.reset()
		return nil, false, fmt.Errorf("%w: index %d of %d", ErrMalformedChunk, index, count)
	}

	if !r.active || id != r.id {
		if index != 0 {
			r.reset()
			return nil, false, fmt.Errorf("%w: message %d starts at chunk %d", ErrMalformedChunk, id, index)
		}
		r.id, r.count, r.next, r.active = id, count, 0, true
		r.buf = r.buf[:0]
	}
	if index != r.next || count != r.count {
		r.reset()
		return nil, false, fmt.Errorf("%w: message %d chunk %d out of order", ErrMalformedChunk, id, index)
	}

	r.buf = append(r.buf, body...)
	r.next++
	if r.next < r.count {
		return nil, false, nil
	}

	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	r.reset()
	return out, true, nil
}

func (r *Reassembler) reset() {
	r.active = false
	r.buf = r.buf[:0]
}
