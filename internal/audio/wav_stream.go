package audio

import (
	"encoding/binary"
	"io"
	"math"
)

// WriteStreamHeader writes a 44-byte mono 16-bit WAV header whose RIFF and
// data sizes are 0xFFFFFFFF, the conventional marker for unknown length.
func WriteStreamHeader(w io.Writer, sampleRate int) (int, error) {
	byteRate := sampleRate * Channels * BitDepth / 8
	blockAlign := Channels * BitDepth / 8

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 0xFFFFFFFF)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1)
	binary.LittleEndian.PutUint16(hdr[22:24], Channels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], BitDepth)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], 0xFFFFFFFF)

	return w.Write(hdr[:])
}

// WritePCM16 writes samples as little-endian signed 16-bit PCM, clamped to
// [-1, 1]. NaN encodes as silence.
func WritePCM16(w io.Writer, samples []float32) (int, error) {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(math.Round(float64(clampSample(s)) * 32767))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}

	return w.Write(buf)
}
