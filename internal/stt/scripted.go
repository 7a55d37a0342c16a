package stt

import "github.com/collectivat/mic2etherpad/internal/audio"

// ScriptedDecoder replays a fixed list of segments, one every `every`
// frames. It stands in for a real model in dry runs and tests.
type ScriptedDecoder struct {
	script []string
	every  int
	frames int
	next   int
}

func NewScriptedDecoder(script []string, every int) *ScriptedDecoder {
	if every <= 0 {
		every = 1
	}
	return &ScriptedDecoder{script: append([]string(nil), script...), every: every}
}

func (d *ScriptedDecoder) Name() string { return "mock" }

func (d *ScriptedDecoder) Accept(_ audio.Frame) (Segment, bool, error) {
	d.frames++
	if d.frames%d.every != 0 || d.next >= len(d.script) {
		return Segment{}, false, nil
	}
	text := d.script[d.next]
	d.next++
	return Segment{Text: text, Final: true}, true, nil
}

// Remaining reports how many scripted segments are still to be emitted.
func (d *ScriptedDecoder) Remaining() int { return len(d.script) - d.next }

func (d *ScriptedDecoder) Close() {}
