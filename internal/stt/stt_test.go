package stt

import (
	"testing"

	"github.com/collectivat/mic2etherpad/internal/audio"
)

func TestParseResult(t *testing.T) {
	seg, err := parseResult(`{"text" : "bon dia a tothom"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if seg.Text != "bon dia a tothom" || !seg.Final {
		t.Fatalf("unexpected segment: %+v", seg)
	}
	seg, err = parseResult(`{"text" : ""}`)
	if err != nil || seg.Text != "" {
		t.Fatalf("expected silence segment, got %+v err=%v", seg, err)
	}
	if _, err := parseResult(`not json`); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestScriptedDecoder(t *testing.T) {
	dec := NewScriptedDecoder([]string{"hello", ""}, 2)
	frame := audio.Frame{0, 0}

	var got []Segment
	for i := 0; i < 6; i++ {
		seg, ok, err := dec.Accept(frame)
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if ok {
			got = append(got, seg)
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
	if got[0].Text != "hello" || got[1].Text != "" {
		t.Fatalf("unexpected segments: %+v", got)
	}
	if dec.Remaining() != 0 {
		t.Fatalf("expected script exhausted")
	}
}
