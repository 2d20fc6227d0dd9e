package broker

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// Wire format: each frame is a 4-byte little-endian size followed by a
// one-byte message tag and the struc-packed payload. Framing is inclusive:
// the size counts the size field itself.
//
// End of stream is signaled in-band by an ExecTB carrying an all-ones index
// and PC, because the emulator may keep the connection open for flushing.

const (
	msgMetadata        = 1
	msgTranslatedBlock = 2
	msgExecTB          = 3
)

// Anything larger is assumed to be stream corruption.
const maxFrameSize = 1 << 24

const (
	sentinelIndex = ^uint32(0)
	sentinelPC    = ^uint64(0)
)

// Metadata announces the guest's load address; region offsets in the
// manifest are relative to it.
type Metadata struct {
	LoadAddr uint64
}

// RawInst is the byte image of one guest instruction.
type RawInst struct {
	Size uint8 `struc:"uint8,sizeof=Data"`
	Data []byte
}

// TranslatedBlock registers the raw instructions of a newly translated
// block under an emulator-assigned index.
type TranslatedBlock struct {
	Index        uint32
	NumInsts     uint32 `struc:"sizeof=Instructions"`
	Instructions []RawInst
}

// RawMemAccess is a memory access keyed by raw instruction index, before
// skew remapping.
type RawMemAccess struct {
	Index   uint32
	IsStore bool
	VAddr   uint64
	Size    uint32
}

// ExecTB reports that a previously registered block was executed at PC.
type ExecTB struct {
	Index       uint32
	PC          uint64
	NumAccesses uint32 `struc:"sizeof=MemAccesses"`
	MemAccesses []RawMemAccess
}

func (t *ExecTB) IsSentinel() bool {
	return t.Index == sentinelIndex && t.PC == sentinelPC
}

// SentinelExecTB builds the in-band end-of-stream marker.
func SentinelExecTB() *ExecTB {
	return &ExecTB{Index: sentinelIndex, PC: sentinelPC}
}

// Message is one decoded frame: *Metadata, *TranslatedBlock or *ExecTB.
type Message interface {
	message()
}

func (*Metadata) message()        {}
func (*TranslatedBlock) message() {}
func (*ExecTB) message()          {}

var errMalformed = errors.New("malformed frame")

// IsMalformed reports whether err poisons the client connection, as opposed
// to a clean end of input.
func IsMalformed(err error) bool {
	return errors.Cause(err) == errMalformed
}

// ReadMessage decodes the next frame from r. A clean end of input between
// frames returns io.EOF; anything else that cannot be decoded wraps
// errMalformed and should terminate the connection.
func ReadMessage(r io.Reader) (Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(errMalformed, "truncated size prefix")
	}
	size := binary.LittleEndian.Uint32(prefix[:])
	if size < 5 || size > maxFrameSize {
		return nil, errors.Wrapf(errMalformed, "bad frame size %d", size)
	}
	payload := make([]byte, size-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(errMalformed, "truncated frame")
	}

	var msg Message
	switch payload[0] {
	case msgMetadata:
		msg = &Metadata{}
	case msgTranslatedBlock:
		msg = &TranslatedBlock{}
	case msgExecTB:
		msg = &ExecTB{}
	default:
		return nil, errors.Wrapf(errMalformed, "unknown message tag %#x", payload[0])
	}

	buf := bytes.NewBuffer(payload[1:])
	s := &models.StrucStream{Stream: buf, Order: binary.LittleEndian}
	if err := s.Unpack(msg); err != nil {
		return nil, errors.Wrapf(errMalformed, "bad %T payload: %v", msg, err)
	}
	if buf.Len() != 0 {
		return nil, errors.Wrapf(errMalformed, "%d trailing bytes after %T", buf.Len(), msg)
	}
	return msg, nil
}

// WriteMessage frames and writes one message. It exists for the emulator
// side of the protocol and for tests.
func WriteMessage(w io.Writer, msg Message) error {
	var tag uint8
	switch msg.(type) {
	case *Metadata:
		tag = msgMetadata
	case *TranslatedBlock:
		tag = msgTranslatedBlock
	case *ExecTB:
		tag = msgExecTB
	default:
		return errors.Errorf("unknown message type %T", msg)
	}

	var payload bytes.Buffer
	s := &models.StrucStream{Stream: &payload, Order: binary.LittleEndian}
	if err := s.Pack(msg); err != nil {
		return err
	}

	var hdr [5]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(len(hdr)+payload.Len()))
	hdr[4] = tag
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "failed to write frame header")
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write frame payload")
	}
	return nil
}
