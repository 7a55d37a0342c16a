package stt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/collectivat/mic2etherpad/internal/audio"
)

// VoskDecoder streams frames into a Kaldi recognizer.
type VoskDecoder struct {
	mu         sync.Mutex
	model      *vosk.VoskModel
	recognizer *vosk.VoskRecognizer
	sampleRate int
}

type voskResult struct {
	Text string `json:"text"`
}

func NewVoskDecoder(modelPath string, sampleRate int) (*VoskDecoder, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("vosk model not found at %s: %w", modelPath, err)
	}
	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model: %w", err)
	}
	rec, err := vosk.NewRecognizer(model, float64(sampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	return &VoskDecoder{model: model, recognizer: rec, sampleRate: sampleRate}, nil
}

func (v *VoskDecoder) Name() string { return "vosk" }

func (v *VoskDecoder) Accept(frame audio.Frame) (Segment, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.recognizer == nil {
		return Segment{}, false, errors.New("vosk decoder closed")
	}
	if v.recognizer.AcceptWaveform(frame.Bytes()) == 0 {
		return Segment{}, false, nil
	}
	seg, err := parseResult(v.recognizer.Result())
	if err != nil {
		return Segment{}, false, err
	}
	return seg, true, nil
}

func parseResult(raw string) (Segment, error) {
	var result voskResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Segment{}, fmt.Errorf("decode vosk result: %w", err)
	}
	return Segment{Text: result.Text, Final: true}, nil
}

func (v *VoskDecoder) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.recognizer != nil {
		v.recognizer.Free()
		v.recognizer = nil
	}
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
}
