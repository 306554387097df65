// Package voice loads per-voice reference style tables.
package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	// MaxPhonemeLength is the number of rows in a style table; row i holds the
	// style for an utterance of i tokens.
	MaxPhonemeLength = 510
	// StyleDim is the width of one style vector.
	StyleDim = 256

	styleBytes = MaxPhonemeLength * StyleDim * 4
)

// ErrStyleSize is returned when a voice file is not exactly one style table.
var ErrStyleSize = errors.New("voice style table has wrong size")

// StyleTable is a [MaxPhonemeLength x StyleDim] float32 matrix.
type StyleTable struct {
	data []float32
}

// LoadStyleTable reads a raw little-endian float32 voice file.
func LoadStyleTable(path string) (*StyleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open voice: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat voice: %w", err)
	}

	if info.Size() != styleBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrStyleSize, path, info.Size(), styleBytes)
	}

	return ReadStyleTable(f)
}

// ReadStyleTable decodes exactly one table from r. Short input and trailing
// bytes are both ErrStyleSize.
func ReadStyleTable(r io.Reader) (*StyleTable, error) {
	buf := make([]byte, styleBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrStyleSize, err)
		}

		return nil, fmt.Errorf("read voice: %w", err)
	}

	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing data", ErrStyleSize)
	}

	data := make([]float32, MaxPhonemeLength*StyleDim)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}

	return &StyleTable{data: data}, nil
}

// NewStyleTable wraps data, which must hold MaxPhonemeLength*StyleDim values.
func NewStyleTable(data []float32) (*StyleTable, error) {
	if len(data) != MaxPhonemeLength*StyleDim {
		return nil, fmt.Errorf("%w: %d values, want %d", ErrStyleSize, len(data), MaxPhonemeLength*StyleDim)
	}

	return &StyleTable{data: append([]float32(nil), data...)}, nil
}

// SelectRow returns the row used for an utterance of phonemeLen tokens.
// Lengths past the table fall back to the middle row, an average-length
// style, rather than the last one.
func SelectRow(phonemeLen int) int {
	switch {
	case phonemeLen < 0:
		return 0
	case phonemeLen >= MaxPhonemeLength:
		return MaxPhonemeLength / 2
	default:
		return phonemeLen
	}
}

// Row returns a copy of row i.
func (t *StyleTable) Row(i int) []float32 {
	return append([]float32(nil), t.data[i*StyleDim:(i+1)*StyleDim]...)
}

// Select returns the style vector for an utterance of phonemeLen tokens.
func (t *StyleTable) Select(phonemeLen int) []float32 {
	return t.Row(SelectRow(phonemeLen))
}
