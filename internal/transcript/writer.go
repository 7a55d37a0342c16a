// Package transcript writes flushed paragraphs to a plain text file.
package transcript

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/collectivat/mic2etherpad/internal/dictation"
)

// Writer appends one line per paragraph. It is a dictation.Observer.
type Writer struct {
	mu         sync.Mutex
	file       *os.File
	buf        *bufio.Writer
	paragraphs int
	closed     bool
}

// Create truncates path and opens it for writing.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}
	return &Writer{file: f, buf: bufio.NewWriter(f)}, nil
}

func (w *Writer) Observe(_ context.Context, ev dictation.Event) error {
	if ev.Kind != dictation.EventParagraph {
		return nil
	}
	return w.WriteParagraph(ev.Final())
}

func (w *Writer) WriteParagraph(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	if _, err := w.buf.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	w.paragraphs++
	return nil
}

// Paragraphs returns how many paragraphs were written.
func (w *Writer) Paragraphs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paragraphs
}

func (w *Writer) Path() string { return w.file.Name() }

// Close flushes buffered paragraphs and closes the file. Safe to call twice.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush transcript: %w", flushErr)
	}
	return closeErr
}
