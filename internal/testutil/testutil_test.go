package testutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/testutil"
)

func TestRequireONNXRuntime_SkipsWhenAbsent(t *testing.T) {
	t.Setenv("ORT_LIBRARY_PATH", "/nonexistent/libonnxruntime.so")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireONNXRuntime(fakeT)
	if !skipped {
		t.Error("expected RequireONNXRuntime to skip when library is absent")
	}
}

func TestRequireONNXRuntime_ReturnsEnvPath(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "libonnxruntime.so")
	if err := os.WriteFile(lib, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ORT_LIBRARY_PATH", lib)

	if got := testutil.RequireONNXRuntime(t); got != lib {
		t.Errorf("RequireONNXRuntime() = %q; want %q", got, lib)
	}
}

func TestRequireEspeak_SkipsWhenAbsent(t *testing.T) {
	t.Setenv("KOKOROTTS_G2P_COMMAND", "/nonexistent/espeak-ng")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireEspeak(fakeT)
	if !skipped {
		t.Error("expected RequireEspeak to skip when binary is absent")
	}
}

func TestRequireModelBundle(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KOKOROTTS_TEST_MODEL_DIR", dir)

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireModelBundle(fakeT)
	if !skipped {
		t.Fatal("expected skip for empty bundle dir")
	}

	for _, name := range []string{"manifest.json", "vocab.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "voices"), 0o755); err != nil {
		t.Fatal(err)
	}

	if got := testutil.RequireModelBundle(t); got != dir {
		t.Errorf("RequireModelBundle() = %q; want %q", got, dir)
	}
}

func TestRepoRoot(t *testing.T) {
	root := testutil.RepoRoot(t)
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("RepoRoot() = %q has no go.mod: %v", root, err)
	}
}

func TestDecodeMonoWAV(t *testing.T) {
	data, err := audio.EncodeWAV(make([]float32, 2400), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	samples := testutil.DecodeMonoWAV(t, data, 16000)
	testutil.AssertDurationApprox(t, len(samples), 16000, 0.14, 0.16)
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
	// Calling s.TB.Skip would skip the outer test.
}
