package broker

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// QemuBroker ingests a live execution trace from a dynamic-translation
// emulator. A receiver goroutine owns the socket: it parses frames,
// registers translated blocks, lazily disassembles them on first execution,
// slices them against the binary-regions manifest and queues the slices.
// The simulator drains the queue through Fetch/FetchRegion on its own
// thread; the two sides only share the TB cache and the slice queue.
type QemuBroker struct {
	config *models.Config
	logger *log.Logger
	arch   *models.Arch

	regions *BinaryRegions
	// Receiver-only: the region currently being executed, nil outside of
	// any region. Set on an exact start match, cleared on an exact end
	// match; re-entry while set is not modeled.
	curRegion *BinaryRegion

	// Receiver-only: guest load address from the Metadata message.
	codeStartAddress uint64

	tbs   *TBCache
	queue *sliceQueue

	ln       net.Listener
	recorder *Recorder
	wg       sync.WaitGroup

	// Consumer-only: next trace sequence number.
	numTraces uint32
}

// NewQemuBroker binds the listen socket and starts the receiver. The
// returned broker is ready for Fetch calls immediately; they block until
// the emulator delivers work.
func NewQemuBroker(config *models.Config, a *models.Arch) (*QemuBroker, error) {
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	q := &QemuBroker{
		config: config,
		logger: logger,
		arch:   a,
		tbs:    &TBCache{},
		queue:  newSliceQueue(),
	}

	if config.MClass && a.ThumbDis != nil {
		// M-class cores never leave Thumb
		q.arch = &models.Arch{
			Name:       a.Name,
			Bits:       a.Bits,
			Dis:        a.ThumbDis,
			ClearPCLSB: a.ClearPCLSB,
		}
	}

	if config.RegionsManifest != "" {
		regions, err := LoadRegions(config.RegionsManifest)
		if err != nil {
			logger.Error("failed to load binary regions", "err", err)
		} else {
			q.regions = regions
			logger.Info("loaded binary regions", "count", regions.Len())
		}
	}

	if config.Recordfile != "" {
		rec, err := NewRecorder(config.Recordfile, a.Name)
		if err != nil {
			return nil, err
		}
		q.recorder = rec
	}

	ln, err := net.Listen("tcp", config.Addr())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", config.Addr())
	}
	q.ln = ln
	logger.Info("listening", "addr", ln.Addr())

	q.wg.Add(1)
	go q.recvWorker()
	return q, nil
}

// Addr returns the bound listen address.
func (q *QemuBroker) Addr() net.Addr {
	return q.ln.Addr()
}

// Close shuts the listener down and waits for the receiver to exit. The
// consumer observes shutdown through the end-of-stream flag; there is no
// soft-cancel.
func (q *QemuBroker) Close() error {
	err := q.ln.Close()
	q.wg.Wait()
	return err
}

func (q *QemuBroker) recvWorker() {
	defer q.wg.Done()
	defer func() {
		// however the receiver dies, the consumer must see a clean end
		q.queue.MarkEOF()
		if q.recorder != nil {
			if err := q.recorder.Close(); err != nil {
				q.logger.Error("failed to close record file", "err", err)
			}
		}
	}()

	accepted := uint(0)
	for {
		conn, err := q.ln.Accept()
		if err != nil {
			// listener closed during shutdown
			return
		}
		accepted++
		q.logger.Info("accepted client", "remote", conn.RemoteAddr())
		q.serveClient(conn)
		conn.Close()
		q.logger.Info("closed client", "remote", conn.RemoteAddr())
		if q.config.MaxConns > 0 && accepted >= q.config.MaxConns {
			return
		}
	}
}

// serveClient reads frames until the client disconnects or sends something
// undecodable. Malformed input costs the client its connection, never the
// server.
func (q *QemuBroker) serveClient(conn net.Conn) {
	var src io.Reader = bufio.NewReader(conn)
	if q.recorder != nil {
		src = io.TeeReader(src, q.recorder)
	}
	for {
		msg, err := ReadMessage(src)
		if err == io.EOF {
			return
		}
		if err != nil {
			q.logger.Warn("dropping client", "err", err)
			return
		}
		q.dispatch(msg)
	}
}

func (q *QemuBroker) dispatch(msg Message) {
	switch m := msg.(type) {
	case *Metadata:
		q.codeStartAddress = m.LoadAddr
		q.logger.Debug("code start address", "addr", fmt.Sprintf("%#x", m.LoadAddr))
	case *TranslatedBlock:
		raw := make([][]byte, len(m.Instructions))
		for i, inst := range m.Instructions {
			raw[i] = inst.Data
		}
		q.tbs.Insert(m.Index, raw)
	case *ExecTB:
		q.tbExec(m)
	}
}

func (q *QemuBroker) tbExec(m *ExecTB) {
	if m.IsSentinel() {
		q.logger.Debug("received end-of-stream signal")
		q.queue.MarkEOF()
		return
	}

	tb := q.tbs.EnsureTranslated(m.Index, m.PC, q.arch, q.logger)
	if tb == nil {
		q.logger.Error("invalid translation block index", "index", m.Index)
		return
	}

	begin, end := uint16(0), endIdxOpen
	var region *BinaryRegion
	if q.regions.Len() > 0 {
		begin, end, region = q.sliceRegion(tb)
	}
	if begin == end {
		return
	}

	var accesses []MemAccessEntry
	for _, ma := range m.MemAccesses {
		idx := int(ma.Index)
		if skewed, ok := tb.Skew[idx]; ok {
			idx = skewed
		}
		// accesses on instructions sliced away with the rest of the block
		// go with them
		if idx < int(begin) || idx >= int(end) {
			continue
		}
		access := models.MemAccess{IsStore: ma.IsStore, Addr: ma.VAddr, Size: ma.Size}
		if n := len(accesses); n > 0 && accesses[n-1].InstIdx == idx {
			// the emulator reports wide accesses piecewise; fold them
			// back into one descriptor
			last := &accesses[n-1].Access
			last.IsStore = last.IsStore || access.IsStore
			lo := min(last.Addr, access.Addr)
			hi := max(last.Addr+uint64(last.Size), access.Addr+uint64(access.Size))
			last.Addr = lo
			last.Size = uint32(hi - lo)
			continue
		}
		accesses = append(accesses, MemAccessEntry{InstIdx: idx, Access: access})
	}

	q.queue.Push(TBSlice{
		Index:       m.Index,
		Begin:       begin,
		End:         end,
		Region:      region,
		MemAccesses: accesses,
	})
}

// sliceRegion walks the block's instruction offsets against the manifest.
// With no active region, only an exact match on some region's start opens
// one; with a region active, only an exact match on its end closes it. Both
// transitions may happen within a single block. Blocks executing entirely
// outside any region resolve to an empty slice.
func (q *QemuBroker) sliceRegion(tb *TranslationBlock) (uint16, uint16, *BinaryRegion) {
	begin, end := uint16(0), endIdxOpen
	var closed *BinaryRegion

	if tb.VAddr < q.codeStartAddress {
		if q.curRegion == nil {
			return end, end, nil
		}
		return begin, end, nil
	}

	va := tb.VAddr - q.codeStartAddress
	i, size := 0, len(tb.VAddrOffsets)
	if q.curRegion == nil {
		begin = end
		for ; i != size; i++ {
			if r := q.regions.Lookup(va + uint64(tb.VAddrOffsets[i])); r != nil {
				q.curRegion = r
				break
			}
		}
		if i != size {
			begin = uint16(i)
			q.logger.Debug("entering region",
				"description", q.curRegion.Description,
				"va", fmt.Sprintf("%#x", va))
		}
	}
	if q.curRegion != nil {
		for ; i != size; i++ {
			if va+uint64(tb.VAddrOffsets[i]) == q.curRegion.End {
				break
			}
		}
		if i != size {
			end = uint16(i) + 1
			closed = q.curRegion
			q.curRegion = nil
			q.logger.Debug("terminating region", "description", closed.Description)
		}
	}
	return begin, end, closed
}

func (q *QemuBroker) Features() Features {
	features := FeatureMetadata
	if q.regions.Len() > 0 {
		features |= FeatureRegion
	}
	return features
}

func (q *QemuBroker) Fetch(buf []models.Ins, size int, mde *models.MDExchanger) int {
	count, _ := q.FetchRegion(buf, size, mde)
	return count
}

// FetchRegion blocks until instructions are available or the stream ends.
// It drains whole slices until size instructions are gathered, splitting
// the last slice if it would overflow, and stops early at a region
// boundary so the boundary instruction is always the last one delivered.
func (q *QemuBroker) FetchRegion(buf []models.Ins, size int, mde *models.MDExchanger) (int, RegionDescriptor) {
	if size == 0 {
		return 0, RegionDescriptor{}
	}
	if size < 0 || size > len(buf) {
		size = len(buf)
	}
	if size == 0 {
		return 0, RegionDescriptor{}
	}

	resolve := func(s *TBSlice) int {
		tb := q.tbs.Get(s.Index)
		if tb == nil {
			return 0
		}
		end := int(s.End)
		if n := len(tb.MCInsts); end > n {
			end = n
		}
		return end - int(s.Begin)
	}

	batch, eof := q.queue.PopBatch(size, true, resolve)
	if len(batch) == 0 {
		if eof {
			return -1, RegionDescriptor{IsEnd: true}
		}
		return 0, RegionDescriptor{}
	}

	count := 0
	for bi := range batch {
		s := &batch[bi]
		tb := q.tbs.Get(s.Index)
		end := int(s.End)
		if n := len(tb.MCInsts); end > n {
			end = n
		}
		accesses := s.MemAccesses
		for i := int(s.Begin); i < end && count < size; i++ {
			ins := tb.MCInsts[i]
			buf[count] = ins
			count++
			seq := q.numTraces
			q.numTraces++
			if len(accesses) > 0 && accesses[0].InstIdx == i {
				if mde != nil {
					mde.IndexMap[ins] = seq
					mde.Registry.Category(models.MDLSUnitMemAccess)[seq] = accesses[0].Access
				}
				accesses = accesses[1:]
			}
		}
	}

	if last := &batch[len(batch)-1]; last.Region != nil {
		return count, RegionDescriptor{IsEnd: true, Description: last.Region.Description}
	}
	return count, RegionDescriptor{}
}
