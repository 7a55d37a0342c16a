package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVRecorder keeps a copy of the captured session as 16-bit mono WAV.
type WAVRecorder struct {
	mu         sync.Mutex
	file       *os.File
	enc        *wav.Encoder
	sampleRate int
	samples    int64
}

func NewWAVRecorder(path string, sampleRate int) (*WAVRecorder, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create recording dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return &WAVRecorder{
		file:       file,
		enc:        wav.NewEncoder(file, sampleRate, 16, 1, 1),
		sampleRate: sampleRate,
	}, nil
}

func (r *WAVRecorder) Write(frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return fmt.Errorf("recording closed")
	}
	data := make([]int, len(frame))
	for i, sample := range frame {
		data[i] = int(sample)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: r.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := r.enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	r.samples += int64(len(frame))
	return nil
}

// Samples written so far.
func (r *WAVRecorder) Samples() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Close finalizes the WAV header and closes the file. Safe to call twice.
func (r *WAVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	encErr := r.enc.Close()
	fileErr := r.file.Close()
	r.enc = nil
	if encErr != nil {
		return fmt.Errorf("close wav encoder: %w", encErr)
	}
	return fileErr
}
