package broker

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

var RECORD_MAGIC = "MCAD"

// RecordHeader prefixes a record file, uncompressed; the frame stream that
// follows is snappy-compressed.
type RecordHeader struct {
	// MAGIC ("MCAD")
	Magic string `struc:"[4]byte"`
	// file format version
	Version uint32
	// Architecture name, right-null-padded.
	Arch string `struc:"[32]byte"`
}

// Recorder tees the raw frame stream into a compressed file so a capture
// can be replayed against the broker without rerunning the guest. Writes go
// through an async writer; disk latency never reaches the socket loop.
type Recorder struct {
	w, zw io.WriteCloser
}

func NewRecorder(path, archName string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create record file '%s'", path)
	}
	header := &RecordHeader{
		Magic:   RECORD_MAGIC,
		Version: 1,
		Arch:    archName,
	}
	s := &models.StrucStream{Stream: f, Order: binary.LittleEndian}
	if err := s.Pack(header); err != nil {
		f.Close()
		return nil, err
	}
	w := models.NewAsyncWriter(f)
	return &Recorder{w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

func (r *Recorder) Write(p []byte) (int, error) {
	return r.zw.Write(p)
}

func (r *Recorder) Close() error {
	if err := r.zw.Close(); err != nil {
		r.w.Close()
		return errors.Wrap(err, "failed to flush record file")
	}
	return r.w.Close()
}
