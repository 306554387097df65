// Package doctor provides environment preflight checks for kokorotts.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/example/go-kokoro-tts/internal/onnx"
	"github.com/example/go-kokoro-tts/internal/tokenizer"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// RuntimeFunc locates the ONNX Runtime library.
type RuntimeFunc func() (onnx.RuntimeInfo, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Runtime reports the ONNX Runtime library, typically onnx.DetectRuntime.
	Runtime RuntimeFunc
	// SkipRuntime skips the ONNX Runtime check.
	SkipRuntime bool
	// EspeakVersion returns the `espeak-ng --version` banner.
	EspeakVersion VersionFunc
	// SkipEspeak skips the espeak-ng check (lexicon backend).
	SkipEspeak bool
	// G2PResource is the espeak-ng data directory or lexicon file. Empty skips it.
	G2PResource string
	// ModelDir holds manifest.json, the stage graphs and vocab.txt. Empty
	// skips the bundle checks.
	ModelDir string
	// VoiceFiles is the list of style tables to load.
	VoiceFiles []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime -----------------------------------------------------
	switch {
	case cfg.SkipRuntime || cfg.Runtime == nil:
		fmt.Fprintf(w, "%s onnx runtime: skipped\n", PassMark)
	default:
		info, err := cfg.Runtime()
		if err != nil {
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s onnx runtime: %s (%s)\n", PassMark, info.LibraryPath, info.Version)
		}
	}

	// ---- espeak-ng --------------------------------------------------------
	switch {
	case cfg.SkipEspeak || cfg.EspeakVersion == nil:
		fmt.Fprintf(w, "%s espeak-ng: skipped\n", PassMark)
	default:
		banner, err := cfg.EspeakVersion()
		if err != nil {
			res.fail(fmt.Sprintf("espeak-ng: %v", err))
			fmt.Fprintf(w, "%s espeak-ng: not found (%v)\n", FailMark, err)
		} else if ver, verErr := checkEspeakVersion(banner); verErr != nil {
			res.fail(fmt.Sprintf("espeak-ng version: %v", verErr))
			fmt.Fprintf(w, "%s espeak-ng version: %v\n", FailMark, verErr)
		} else {
			fmt.Fprintf(w, "%s espeak-ng: %s\n", PassMark, ver)
		}
	}

	if cfg.G2PResource != "" {
		if _, err := os.Stat(cfg.G2PResource); err != nil {
			res.fail(fmt.Sprintf("g2p resource %q: %v", cfg.G2PResource, err))
			fmt.Fprintf(w, "%s g2p resource %s: not found\n", FailMark, cfg.G2PResource)
		} else {
			fmt.Fprintf(w, "%s g2p resource: %s\n", PassMark, cfg.G2PResource)
		}
	}

	if cfg.ModelDir != "" {
		checkBundle(cfg.ModelDir, w, &res)
	}

	// ---- voice files ------------------------------------------------------
	for _, path := range cfg.VoiceFiles {
		if _, err := voice.LoadStyleTable(path); err != nil {
			res.fail(fmt.Sprintf("voice file %q: %v", path, err))
			fmt.Fprintf(w, "%s voice file %s: %v\n", FailMark, path, err)
		} else {
			fmt.Fprintf(w, "%s voice file: %s\n", PassMark, path)
		}
	}

	return res
}

func checkBundle(dir string, w io.Writer, res *Result) {
	manifest, err := onnx.LoadManifest(filepath.Join(dir, onnx.ManifestName))
	if err != nil {
		res.fail(fmt.Sprintf("model manifest: %v", err))
		fmt.Fprintf(w, "%s model manifest: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s model manifest: %s\n", PassMark, manifest.Path())

		for _, name := range tts.StageNames {
			if _, ok := manifest.Graph(name); !ok {
				res.fail(fmt.Sprintf("model graph %q: missing from manifest", name))
				fmt.Fprintf(w, "%s model graph %s: missing\n", FailMark, name)
			}
		}
	}

	vocabPath := filepath.Join(dir, tts.VocabName)

	vocab, err := tokenizer.LoadVocabulary(vocabPath)
	if err != nil {
		res.fail(fmt.Sprintf("vocabulary: %v", err))
		fmt.Fprintf(w, "%s vocabulary %s: %v\n", FailMark, vocabPath, err)
	} else {
		fmt.Fprintf(w, "%s vocabulary: %d symbols\n", PassMark, vocab.Len())
	}

	mgr, err := voice.NewManager(filepath.Join(dir, tts.VoicesDir))
	if err != nil {
		res.fail(fmt.Sprintf("voices: %v", err))
		fmt.Fprintf(w, "%s voices: %v\n", FailMark, err)

		return
	}

	fmt.Fprintf(w, "%s voices: %d installed\n", PassMark, len(mgr.ListVoices()))
}

var espeakVersionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+(?:\.[0-9]+)?)`)

// checkEspeakVersion extracts the version from an espeak-ng banner and
// rejects releases older than 1.49, which lack tie-bar IPA output.
func checkEspeakVersion(banner string) (string, error) {
	m := espeakVersionPattern.FindStringSubmatch(banner)
	if len(m) < 2 {
		return "", fmt.Errorf("no version in %q", strings.TrimSpace(banner))
	}

	ver := m[1]

	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return "", fmt.Errorf("cannot parse %q: %w", ver, err)
	}

	if major < 1 || (major == 1 && minor < 49) {
		return "", fmt.Errorf("requires espeak-ng >=1.49, got %s", ver)
	}

	return ver, nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}

// EspeakCommandVersion runs `<command> --version`. command is split like a
// shell word list so it may carry extra arguments.
func EspeakCommandVersion(command string) VersionFunc {
	return func() (string, error) {
		args, err := shellwords.NewParser().Parse(command)
		if err != nil {
			return "", fmt.Errorf("parse command: %w", err)
		}
		if len(args) == 0 {
			return "", fmt.Errorf("empty command")
		}

		exe, err := exec.LookPath(args[0])
		if err != nil {
			return "", err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		out, err := exec.CommandContext(ctx, exe, "--version").Output()
		if err != nil {
			return "", fmt.Errorf("%s --version: %w", exe, err)
		}

		return strings.TrimSpace(string(out)), nil
	}
}
