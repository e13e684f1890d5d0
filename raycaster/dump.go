package raycaster

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"honnef.co/go/safeish"
)

// Raw sample dumps capture one frame's subsample stream for offline
// debugging of resolve artifacts. The format is a fixed header followed
// by one snappy block of the sample array.

var dumpMagic = [8]byte{'H', 'V', 'V', 'R', 'S', 'M', 'P', '1'}

// WriteSamples writes a compressed dump of the sample stream to w.
func WriteSamples(w io.Writer, samples []GBufferSample) error {
	var hdr [12]byte
	copy(hdr[:], dumpMagic[:])
	binary.LittleEndian.PutUint32(hdr[8:], uint32(len(samples)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing sample dump header: %w", err)
	}
	block := snappy.Encode(nil, safeish.SliceCast[[]byte](samples))
	if _, err := w.Write(block); err != nil {
		return fmt.Errorf("writing sample dump: %w", err)
	}
	return nil
}

// ReadSamples reads a dump produced by WriteSamples.
func ReadSamples(r io.Reader) ([]GBufferSample, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("reading sample dump header: %w", err)
	}
	if [8]byte(hdr[:8]) != dumpMagic {
		return nil, fmt.Errorf("not a sample dump (magic %q)", hdr[:8])
	}
	n := binary.LittleEndian.Uint32(hdr[8:])

	block, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading sample dump: %w", err)
	}
	raw, err := snappy.Decode(nil, block)
	if err != nil {
		return nil, fmt.Errorf("decompressing sample dump: %w", err)
	}
	samples := safeish.SliceCast[[]GBufferSample](raw)
	if uint32(len(samples)) != n {
		return nil, fmt.Errorf("sample dump has %d samples, header says %d", len(samples), n)
	}
	return samples, nil
}
