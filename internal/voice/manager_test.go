package voice

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManager_EmptyDir(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Error("NewManager(\"\") = nil; want error")
	}
}

func TestNewManager_MissingDir(t *testing.T) {
	if _, err := NewManager(filepath.Join(t.TempDir(), "none")); err == nil {
		t.Error("NewManager(missing) = nil; want error")
	}
}

func TestNewManager_ScansBinFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bf_emma.bin", "af_heart.bin", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := os.Mkdir(filepath.Join(dir, "sub.bin"), 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	voices := m.ListVoices()
	if len(voices) != 2 || voices[0].ID != "af_heart" || voices[1].ID != "bf_emma" {
		t.Fatalf("ListVoices = %+v", voices)
	}

	path, err := m.ResolvePath("bf_emma")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}

	if path != filepath.Join(dir, "bf_emma.bin") {
		t.Errorf("ResolvePath = %q", path)
	}
}

func TestNewManager_ManifestWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "other.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "h.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	manifest := `{"voices":[{"id":"heart","path":"h.bin","license":"apache-2.0"}]}`
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	voices := m.ListVoices()
	if len(voices) != 1 || voices[0].ID != "heart" || voices[0].License != "apache-2.0" {
		t.Fatalf("ListVoices = %+v", voices)
	}
}

func TestNewManager_ManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"invalid json", "{bad json"},
		{"empty id", `{"voices":[{"id":"","path":"v.bin"}]}`},
		{"empty path", `{"voices":[{"id":"v1","path":""}]}`},
		{"duplicate id", `{"voices":[{"id":"v1","path":"a.bin"},{"id":"v1","path":"b.bin"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(tt.manifest), 0o644); err != nil {
				t.Fatal(err)
			}

			if _, err := NewManager(dir); err == nil {
				t.Error("NewManager = nil; want error")
			}
		})
	}
}

func TestResolvePath_Errors(t *testing.T) {
	dir := t.TempDir()
	manifest := `{"voices":[{"id":"ghost","path":"ghost.bin"}]}`
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.ResolvePath("nobody"); err == nil {
		t.Error("ResolvePath(unknown) = nil error")
	}

	if _, err := m.ResolvePath("ghost"); err == nil {
		t.Error("ResolvePath(missing file) = nil error")
	}
}
