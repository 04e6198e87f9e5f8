package pwclient

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/smallnest/ringbuffer"
	"github.com/undertone-audio/undertone/internal/model"
)

// levelHistorySamples bounds how many peak samples (spec.md SPEC_FULL §B.8
// levels_updated events) are retained per mix — one minute at the 2Hz poll
// interval the runtime uses.
const levelHistorySamples = 120

const sampleWidth = 8 // float64, little-endian

// levelHistory keeps a bounded, per-mix history of polled peak levels in a
// ring buffer. ringbuffer.RingBuffer is byte-oriented, so samples are
// encoded/decoded as 8-byte little-endian float64s.
type levelHistory struct {
	mu  sync.Mutex
	buf map[model.Mix]*ringbuffer.RingBuffer
}

func newLevelHistory() *levelHistory {
	return &levelHistory{buf: make(map[model.Mix]*ringbuffer.RingBuffer)}
}

func (h *levelHistory) record(mix model.Mix, peak float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rb, ok := h.buf[mix]
	if !ok {
		rb = ringbuffer.New(levelHistorySamples * sampleWidth)
		h.buf[mix] = rb
	}
	if rb.Length() >= levelHistorySamples*sampleWidth {
		discard := make([]byte, sampleWidth)
		_, _ = rb.Read(discard)
	}
	var enc [sampleWidth]byte
	binary.LittleEndian.PutUint64(enc[:], math.Float64bits(peak))
	_, _ = rb.Write(enc[:])
}

// recent returns the retained peak samples for mix, oldest first.
func (h *levelHistory) recent(mix model.Mix) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	rb, ok := h.buf[mix]
	if !ok {
		return nil
	}
	n := rb.Length()
	raw := make([]byte, n)
	peeked, _ := rb.Peek(raw)
	out := make([]float64, 0, len(peeked)/sampleWidth)
	for i := 0; i+sampleWidth <= len(peeked); i += sampleWidth {
		out = append(out, math.Float64frombits(binary.LittleEndian.Uint64(peeked[i:i+sampleWidth])))
	}
	return out
}
