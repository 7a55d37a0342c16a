// Package models locates Vosk models, downloading them on first use.
package models

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrNoModel         = errors.New("neither model path nor language given")
	ErrUnknownLanguage = errors.New("no model url for language")
)

// LoadURLs reads a JSON object of language code -> model zip URL.
func LoadURLs(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model urls: %w", err)
	}
	var urls map[string]string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("parse model urls: %w", err)
	}
	return urls, nil
}

type Manager struct {
	dir  string
	urls map[string]string
	http *http.Client
	log  *slog.Logger
}

func NewManager(dir string, urls map[string]string, httpClient *http.Client, log *slog.Logger) *Manager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Manager{
		dir:  dir,
		urls: urls,
		http: httpClient,
		log:  log.With(slog.String("component", "models")),
	}
}

// Dir returns where the model for url lives: the zip name without its
// extension, inside the models directory.
func (m *Manager) Dir(url string) string {
	base := path.Base(url)
	return filepath.Join(m.dir, strings.TrimSuffix(base, path.Ext(base)))
}

// Resolve returns the model directory to load. An explicit modelPath wins;
// otherwise the model for language is downloaded if it is not present yet.
func (m *Manager) Resolve(ctx context.Context, modelPath, language string) (string, error) {
	if modelPath != "" {
		if _, err := os.Stat(modelPath); err != nil {
			return "", fmt.Errorf("model path: %w", err)
		}
		return modelPath, nil
	}
	if language == "" {
		return "", ErrNoModel
	}
	url, ok := m.urls[language]
	if !ok {
		return "", fmt.Errorf("%w %q; add it to the url table or pass a model path", ErrUnknownLanguage, language)
	}

	dest := m.Dir(url)
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return dest, nil
	}

	m.log.Info("model not found, downloading", slog.String("language", language), slog.String("url", url))
	zipPath := dest + ".zip"
	if err := m.download(ctx, url, zipPath); err != nil {
		return "", err
	}
	if err := unzip(zipPath, m.dir); err != nil {
		return "", fmt.Errorf("extract model: %w", err)
	}
	if info, err := os.Stat(dest); err != nil || !info.IsDir() {
		return "", fmt.Errorf("model archive %s did not contain %s", zipPath, filepath.Base(dest))
	}
	m.log.Info("model ready", slog.String("path", dest))
	return dest, nil
}

func (m *Manager) download(ctx context.Context, url, dest string) error {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		m.log.Info("using cached model archive", slog.String("path", dest))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: %s", resp.Status)
	}

	tmp := dest + ".tmp"
	defer os.Remove(tmp)
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	m.log.Info("model archive downloaded", slog.Int64("bytes", written))
	return os.Rename(tmp, dest)
}

func unzip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	for _, f := range r.File {
		fpath := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(fpath, root) {
			return fmt.Errorf("illegal path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, fpath); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode()|0o600)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		out.Close()
		return err
	}
	_, err = io.Copy(out, rc)
	rc.Close()
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
