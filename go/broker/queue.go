package broker

import (
	"sort"
	"sync"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// MemAccessEntry pairs a memory access with the decoded-instruction index
// it belongs to.
type MemAccessEntry struct {
	InstIdx int
	Access  models.MemAccess
}

// endIdxOpen marks a slice that runs to the end of its block.
const endIdxOpen = ^uint16(0)

// TBSlice is the unit of work handed from the receiver to the consumer: a
// half-open [Begin, End) range over one block's decoded instructions, plus
// the memory accesses that fall inside it. The access list is owned by the
// slice.
type TBSlice struct {
	Index uint32

	Begin, End uint16

	// Non-nil when the region ends on the last instruction of this slice.
	Region *BinaryRegion

	// Sorted ascending by InstIdx.
	MemAccesses []MemAccessEntry
}

// split carves off the prefix [Begin, at) and keeps the suffix [at, End) in
// place. Accesses below the split point move to the prefix; the region
// marker stays with the suffix, since the boundary is its last instruction.
func (s *TBSlice) split(at uint16) TBSlice {
	taken := TBSlice{Index: s.Index, Begin: s.Begin, End: at}
	i := sort.Search(len(s.MemAccesses), func(i int) bool {
		return s.MemAccesses[i].InstIdx >= int(at)
	})
	if i > 0 {
		taken.MemAccesses = s.MemAccesses[:i:i]
		s.MemAccesses = s.MemAccesses[i:]
	}
	s.Begin = at
	return taken
}

// sliceQueue is the handoff between the receiver and the consumer. The
// consumer blocks only while the queue is empty and the stream has not
// ended; once eof is set and the queue drains, every pop reports eof.
type sliceQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	slices []TBSlice
	eof    bool
}

func newSliceQueue() *sliceQueue {
	q := &sliceQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *sliceQueue) Push(s TBSlice) {
	q.mu.Lock()
	q.slices = append(q.slices, s)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *sliceQueue) MarkEOF() {
	q.mu.Lock()
	q.eof = true
	q.mu.Unlock()
	q.cond.Signal()
}

// PopBatch removes slices covering up to max instructions, splitting the
// head slice in place when it would overflow. resolve reports the effective
// instruction count of a slice (End may run past the block's real length);
// slices it resolves to nothing are dropped. The batch ends early when it
// takes an end-of-region slice. The bool result is true only when the
// stream has ended and nothing was left to pop.
func (q *sliceQueue) PopBatch(max int, block bool, resolve func(*TBSlice) int) ([]TBSlice, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.slices) == 0 {
		if q.eof {
			return nil, true
		}
		if !block {
			return nil, false
		}
		for len(q.slices) == 0 && !q.eof {
			q.cond.Wait()
		}
		if len(q.slices) == 0 {
			return nil, true
		}
	}

	var batch []TBSlice
	want := max
	for want > 0 && len(q.slices) > 0 {
		head := &q.slices[0]
		n := resolve(head)
		if n <= 0 {
			q.slices = q.slices[1:]
			continue
		}
		if n > want {
			batch = append(batch, head.split(head.Begin+uint16(want)))
			break
		}
		batch = append(batch, *head)
		q.slices = q.slices[1:]
		want -= n
		if batch[len(batch)-1].Region != nil {
			break
		}
	}
	return batch, false
}
