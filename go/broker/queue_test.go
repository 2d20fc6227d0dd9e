package broker

import (
	"testing"
	"time"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// lenResolve resolves slice lengths against fixed block sizes, the way the
// broker clamps End to the decoded instruction count.
func lenResolve(blockLen map[uint32]int) func(*TBSlice) int {
	return func(s *TBSlice) int {
		end := int(s.End)
		if n, ok := blockLen[s.Index]; ok && end > n {
			end = n
		}
		return end - int(s.Begin)
	}
}

func TestQueueFIFO(t *testing.T) {
	q := newSliceQueue()
	q.Push(TBSlice{Index: 0, Begin: 0, End: 2})
	q.Push(TBSlice{Index: 1, Begin: 0, End: 3})
	q.Push(TBSlice{Index: 2, Begin: 0, End: 4})

	batch, eof := q.PopBatch(100, false, lenResolve(nil))
	if eof {
		t.Fatal("eof before MarkEOF")
	}
	if len(batch) != 3 {
		t.Fatalf("popped %d slices, want 3", len(batch))
	}
	for i, s := range batch {
		if s.Index != uint32(i) {
			t.Errorf("slice %d has index %d, out of order", i, s.Index)
		}
	}

	if batch, eof := q.PopBatch(100, false, lenResolve(nil)); eof || batch != nil {
		t.Error("drained queue without eof should return an empty batch")
	}
	q.MarkEOF()
	if _, eof := q.PopBatch(100, false, lenResolve(nil)); !eof {
		t.Error("drained queue after MarkEOF should report eof")
	}
}

func TestQueueSplit(t *testing.T) {
	q := newSliceQueue()
	q.Push(TBSlice{
		Index: 0, Begin: 0, End: 10,
		MemAccesses: []MemAccessEntry{
			{InstIdx: 1, Access: models.MemAccess{Addr: 0x100, Size: 4}},
			{InstIdx: 5, Access: models.MemAccess{Addr: 0x200, Size: 4}},
			{InstIdx: 7, Access: models.MemAccess{Addr: 0x300, Size: 8, IsStore: true}},
		},
	})

	batch, _ := q.PopBatch(4, false, lenResolve(nil))
	if len(batch) != 1 {
		t.Fatalf("popped %d slices, want 1", len(batch))
	}
	got := batch[0]
	if got.Begin != 0 || got.End != 4 {
		t.Errorf("prefix range [%d, %d), want [0, 4)", got.Begin, got.End)
	}
	if len(got.MemAccesses) != 1 || got.MemAccesses[0].InstIdx != 1 {
		t.Errorf("prefix accesses %v, want only InstIdx 1", got.MemAccesses)
	}

	// suffix stays queued with the remaining accesses
	batch, _ = q.PopBatch(100, false, lenResolve(nil))
	if len(batch) != 1 {
		t.Fatalf("popped %d slices, want 1", len(batch))
	}
	got = batch[0]
	if got.Begin != 4 || got.End != 10 {
		t.Errorf("suffix range [%d, %d), want [4, 10)", got.Begin, got.End)
	}
	if len(got.MemAccesses) != 2 || got.MemAccesses[0].InstIdx != 5 {
		t.Errorf("suffix accesses %v, want InstIdx 5 and 7", got.MemAccesses)
	}
}

func TestQueueSplitBoundaryAccess(t *testing.T) {
	// every access sits below the split point: all of them move to the
	// prefix, none linger on the suffix
	q := newSliceQueue()
	q.Push(TBSlice{
		Index: 0, Begin: 0, End: 10,
		MemAccesses: []MemAccessEntry{
			{InstIdx: 0, Access: models.MemAccess{Addr: 0x100, Size: 4}},
			{InstIdx: 3, Access: models.MemAccess{Addr: 0x200, Size: 4}},
		},
	})

	batch, _ := q.PopBatch(4, false, lenResolve(nil))
	if len(batch[0].MemAccesses) != 2 {
		t.Errorf("prefix got %d accesses, want 2", len(batch[0].MemAccesses))
	}
	batch, _ = q.PopBatch(100, false, lenResolve(nil))
	if len(batch[0].MemAccesses) != 0 {
		t.Errorf("suffix kept %d accesses, want 0", len(batch[0].MemAccesses))
	}
}

func TestQueueRegionEndsBatch(t *testing.T) {
	region := &BinaryRegion{Description: "hot", Start: 0x10, End: 0x20}
	q := newSliceQueue()
	q.Push(TBSlice{Index: 0, Begin: 0, End: 2, Region: region})
	q.Push(TBSlice{Index: 1, Begin: 0, End: 2})

	batch, _ := q.PopBatch(100, false, lenResolve(nil))
	if len(batch) != 1 || batch[0].Region != region {
		t.Fatalf("batch should stop at the end-of-region slice, got %d slices", len(batch))
	}
	batch, _ = q.PopBatch(100, false, lenResolve(nil))
	if len(batch) != 1 || batch[0].Index != 1 {
		t.Error("second batch should carry the remaining slice")
	}
}

func TestQueueOpenEndClamped(t *testing.T) {
	// an open-ended slice resolves against the block's real length; stale
	// empty slices are dropped outright
	q := newSliceQueue()
	q.Push(TBSlice{Index: 0, Begin: 3, End: endIdxOpen})
	q.Push(TBSlice{Index: 1, Begin: 2, End: 2})
	q.Push(TBSlice{Index: 2, Begin: 0, End: endIdxOpen})

	resolve := lenResolve(map[uint32]int{0: 5, 2: 1})
	batch, _ := q.PopBatch(100, false, resolve)
	if len(batch) != 2 {
		t.Fatalf("popped %d slices, want 2 (empty slice dropped)", len(batch))
	}
	if batch[0].Index != 0 || batch[1].Index != 2 {
		t.Errorf("unexpected batch order: %v, %v", batch[0].Index, batch[1].Index)
	}
}

func TestQueueBlocking(t *testing.T) {
	q := newSliceQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(TBSlice{Index: 0, Begin: 0, End: 1})
	}()
	batch, eof := q.PopBatch(100, true, lenResolve(nil))
	if eof || len(batch) != 1 {
		t.Fatalf("blocking pop returned (%d slices, eof=%v)", len(batch), eof)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.MarkEOF()
	}()
	if _, eof := q.PopBatch(100, true, lenResolve(nil)); !eof {
		t.Error("MarkEOF should wake a blocked pop with eof")
	}
}
