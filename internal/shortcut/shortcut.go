// Package shortcut maps exact recognized phrases to dictation commands.
package shortcut

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Command is the name of a spoken shortcut, e.g. NEWLINE.
type Command string

const (
	CommandNewline Command = "NEWLINE"
	CommandEnd     Command = "END"
)

// ErrDuplicatePhrase is returned when two commands share a trigger phrase.
var ErrDuplicatePhrase = errors.New("duplicate shortcut phrase")

// Table is the immutable phrase -> command lookup built at startup.
type Table struct {
	byPhrase  map[string]Command
	byCommand map[Command]string
}

// Empty returns a table without shortcuts.
func Empty() *Table {
	return &Table{byPhrase: map[string]Command{}, byCommand: map[Command]string{}}
}

// New inverts a command -> phrase mapping. Phrases must be unique.
func New(mapping map[string]string) (*Table, error) {
	t := Empty()
	// sorted so the reported conflict is deterministic
	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		phrase := mapping[name]
		if name == "" || phrase == "" {
			return nil, fmt.Errorf("shortcut %q: command and phrase must not be empty", name)
		}
		if other, ok := t.byPhrase[phrase]; ok {
			return nil, fmt.Errorf("%w: %q used by %s and %s", ErrDuplicatePhrase, phrase, other, name)
		}
		t.byPhrase[phrase] = Command(name)
		t.byCommand[Command(name)] = phrase
	}
	return t, nil
}

// Load reads a JSON object of command name -> trigger phrase.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shortcuts: %w", err)
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("parse shortcuts: %w", err)
	}
	return New(mapping)
}

// Resolve looks up the exact segment text.
func (t *Table) Resolve(text string) (Command, bool) {
	if t == nil {
		return "", false
	}
	cmd, ok := t.byPhrase[text]
	return cmd, ok
}

// Phrase returns the trigger phrase configured for cmd.
func (t *Table) Phrase(cmd Command) (string, bool) {
	if t == nil {
		return "", false
	}
	phrase, ok := t.byCommand[cmd]
	return phrase, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byPhrase)
}
