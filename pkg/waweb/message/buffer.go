package message

import "sync"

// DefaultBufferSize bounds the in-memory message log.
const DefaultBufferSize = 1000

// LogBuffer is a bounded ring of the most recently processed records,
// independent of the durable store. Redelivered ids replace the existing
// entry in place; past the bound the oldest entry is evicted first.
type LogBuffer struct {
	mu   sync.RWMutex
	max  int
	recs []*Record
}

// NewLogBuffer creates a buffer holding at most max records.
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = DefaultBufferSize
	}
	return &LogBuffer{max: max}
}

// Append upserts a record. Same-id entries are replaced in place so a
// redelivered event never occupies a second slot.
func (b *LogBuffer) Append(rec *Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.recs) - 1; i >= 0; i-- {
		if b.recs[i].ID == rec.ID {
			b.recs[i] = rec
			return
		}
	}

	b.recs = append(b.recs, rec)
	if len(b.recs) > b.max {
		b.recs = b.recs[len(b.recs)-b.max:]
	}
}

// Recent returns up to limit records, newest first.
func (b *LogBuffer) Recent(limit int) []*Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > len(b.recs) {
		limit = len(b.recs)
	}
	out := make([]*Record, 0, limit)
	for i := len(b.recs) - 1; i >= len(b.recs)-limit; i-- {
		out = append(out, b.recs[i])
	}
	return out
}

// Len returns the current number of buffered records.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.recs)
}
