// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a readable reason when its prerequisite is
// absent, so integration tests stay runnable in partial environments.
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireONNXRuntime(t)
//	    dir := testutil.RequireModelBundle(t)
//	    ...
//	}
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks ORT_LIBRARY_PATH, then KOKOROTTS_ORT_LIB, then common
// system library paths, and returns the path found.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "KOKOROTTS_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
			return ""
		}
	}

	for _, p := range []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skipf("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or KOKOROTTS_ORT_LIB")

	return ""
}

// RequireEspeak skips the test unless espeak-ng (or KOKOROTTS_G2P_COMMAND)
// is on PATH.
func RequireEspeak(tb testing.TB) string {
	tb.Helper()

	exe := os.Getenv("KOKOROTTS_G2P_COMMAND")
	if exe == "" {
		exe = "espeak-ng"
	}

	path, err := exec.LookPath(exe)
	if err != nil {
		tb.Skipf("espeak-ng not available (%q not in PATH); set KOKOROTTS_G2P_COMMAND to override", exe)
		return ""
	}

	return path
}

// RequireModelBundle skips the test unless a model bundle directory with
// manifest.json, vocab.txt and voices/ exists. KOKOROTTS_TEST_MODEL_DIR
// overrides the default of models/kokoro at the repository root.
func RequireModelBundle(tb testing.TB) string {
	tb.Helper()

	dir := os.Getenv("KOKOROTTS_TEST_MODEL_DIR")
	if dir == "" {
		dir = filepath.Join(RepoRoot(tb), "models", "kokoro")
	}

	for _, name := range []string{"manifest.json", "vocab.txt", "voices"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			tb.Skipf("model bundle incomplete at %q: %v", dir, err)
			return ""
		}
	}

	return dir
}

// RepoRoot walks up from the working directory to the directory holding
// go.mod.
func RepoRoot(tb testing.TB) string {
	tb.Helper()

	dir, err := os.Getwd()
	if err != nil {
		tb.Fatalf("getwd: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			tb.Fatalf("go.mod not found above working directory")
			return ""
		}
		dir = parent
	}
}
