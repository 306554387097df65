package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Voice describes one installed voice.
type Voice struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	License string `json:"license,omitempty"`
}

type voiceManifest struct {
	Voices []Voice `json:"voices"`
}

// ManifestName is the optional voice index inside a voices directory.
const ManifestName = "manifest.json"

// Manager lists the voices installed in a directory. When the directory has
// a manifest.json it is authoritative; otherwise every *.bin file is a voice
// named after its base name.
type Manager struct {
	dir    string
	voices []Voice
	byID   map[string]Voice
}

func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("voice directory is required")
	}

	var (
		voices []Voice
		err    error
	)

	manifestPath := filepath.Join(dir, ManifestName)
	if _, statErr := os.Stat(manifestPath); statErr == nil {
		voices, err = readManifest(manifestPath)
	} else {
		voices, err = scanDir(dir)
	}

	if err != nil {
		return nil, err
	}

	mgr := &Manager{
		dir:    dir,
		voices: voices,
		byID:   make(map[string]Voice, len(voices)),
	}

	for _, v := range voices {
		if v.ID == "" {
			return nil, errors.New("voice manifest contains empty id")
		}

		if v.Path == "" {
			return nil, fmt.Errorf("voice %q has empty path", v.ID)
		}

		if _, exists := mgr.byID[v.ID]; exists {
			return nil, fmt.Errorf("duplicate voice id %q", v.ID)
		}

		mgr.byID[v.ID] = v
	}

	return mgr, nil
}

func readManifest(path string) ([]Voice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice manifest: %w", err)
	}

	var manifest voiceManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode voice manifest: %w", err)
	}

	return manifest.Voices, nil
}

func scanDir(dir string) ([]Voice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read voice directory: %w", err)
	}

	var voices []Voice

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}

		voices = append(voices, Voice{
			ID:   strings.TrimSuffix(e.Name(), ".bin"),
			Path: e.Name(),
		})
	}

	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })

	return voices, nil
}

func (m *Manager) ListVoices() []Voice {
	return append([]Voice(nil), m.voices...)
}

// ResolvePath returns the on-disk style file for id.
func (m *Manager) ResolvePath(id string) (string, error) {
	v, ok := m.byID[id]
	if !ok {
		return "", fmt.Errorf("unknown voice id %q", id)
	}

	resolved := v.Path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(m.dir, resolved)
	}

	resolved = filepath.Clean(resolved)

	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("voice file for %q: %w", id, err)
	}

	return resolved, nil
}
