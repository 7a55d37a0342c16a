// Package audio captures microphone blocks and hands them to the dictation
// loop through a bounded channel.
package audio

import "encoding/binary"

// Frame is one fixed-size block of mono signed 16-bit samples.
type Frame []int16

// Bytes returns the frame as PCM16 little-endian, the layout Vosk expects.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f)*2)
	for i, sample := range f {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// Seconds returns the frame length at the given sample rate.
func (f Frame) Seconds(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(f)) / float64(sampleRate)
}
