// Package etherpadtest provides an in-memory Etherpad HTTP API for tests.
package etherpadtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

// Server serves listAllPads, createPad, setText, appendText and getText
// under /api/<version>/.
type Server struct {
	*httptest.Server

	APIKey  string
	Version string

	mu    sync.Mutex
	pads  map[string]string
	calls []string
}

// NewServer starts a server holding pads. Call Close when done.
func NewServer(apiKey string, pads map[string]string) *Server {
	if pads == nil {
		pads = map[string]string{}
	}
	s := &Server{APIKey: apiKey, Version: "1.2.13", pads: pads}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Text returns the content of padID and whether it exists.
func (s *Server) Text(padID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.pads[padID]
	return text, ok
}

// Calls lists the API methods invoked so far.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "api" || parts[1] != s.Version {
		http.NotFound(w, r)
		return
	}
	method := parts[2]

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, method)

	reply := func(code int, message string, data any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
	}
	if r.Form.Get("apikey") != s.APIKey {
		reply(4, "no or wrong API Key", nil)
		return
	}
	padID := r.Form.Get("padID")
	switch method {
	case "listAllPads":
		ids := make([]string, 0, len(s.pads))
		for id := range s.pads {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		reply(0, "ok", map[string]any{"padIDs": ids})
	case "createPad":
		if _, ok := s.pads[padID]; ok {
			reply(1, "padID does already exist", nil)
			return
		}
		s.pads[padID] = r.Form.Get("text")
		reply(0, "ok", nil)
	case "setText", "appendText", "getText":
		text, ok := s.pads[padID]
		if !ok {
			reply(1, "padID does not exist", nil)
			return
		}
		switch method {
		case "setText":
			s.pads[padID] = r.Form.Get("text")
			reply(0, "ok", nil)
		case "appendText":
			s.pads[padID] = text + r.Form.Get("text")
			reply(0, "ok", nil)
		default:
			reply(0, "ok", map[string]string{"text": text})
		}
	default:
		reply(3, "no such function", nil)
	}
}
