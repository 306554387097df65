package g2p

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"
)

const defaultEspeakCommand = "espeak-ng"

// espeakVoices maps language tags to espeak-ng voice names. Tags not listed
// are passed through unchanged.
var espeakVoices = map[string]string{
	"":      "en-us",
	"en":    "en-us",
	"en-us": "en-us",
	"a":     "en-us",
	"en-gb": "en-gb",
	"b":     "en-gb",
	"zh":    "cmn",
	"cmn":   "cmn",
	"ja":    "ja",
	"es":    "es",
	"fr":    "fr-fr",
	"hi":    "hi",
	"it":    "it",
	"pt":    "pt-br",
}

// espeakVoicePattern accepts espeak-ng voice names such as "en-us",
// "cmn" or "pt-br". Anything else is never passed to the command line.
var espeakVoicePattern = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{1,8})*$`)

type espeak struct {
	cmd      []string
	dataPath string
}

func newEspeak(opts Options) (*espeak, error) {
	command := opts.Command
	if strings.TrimSpace(command) == "" {
		command = defaultEspeakCommand
	}

	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse g2p command: %w", err)
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("%w: g2p command empty", ErrBackendUnavailable)
	}

	exe, err := exec.LookPath(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrBackendUnavailable, args[0], err)
	}

	args[0] = exe

	if opts.ResourcePath != "" {
		if _, err := os.Stat(opts.ResourcePath); err != nil {
			return nil, fmt.Errorf("%w: espeak data: %v", ErrBackendUnavailable, err)
		}
	}

	return &espeak{cmd: args, dataPath: opts.ResourcePath}, nil
}

func (e *espeak) Kind() Kind { return KindEspeak }

// EspeakVoice returns the espeak-ng voice used for a language tag.
func EspeakVoice(language string) string {
	tag := strings.ToLower(strings.TrimSpace(language))
	tag = strings.ReplaceAll(tag, "_", "-")

	if v, ok := espeakVoices[tag]; ok {
		return v
	}

	return tag
}

func (e *espeak) args(language string) []string {
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "-q", "--ipa", "--tie=^", "-v", EspeakVoice(language))

	if e.dataPath != "" {
		args = append(args, "--path="+e.dataPath)
	}

	return append(args, "--stdin")
}

// Phonemize runs espeak-ng once for the segment. espeak prints one line per
// clause; lines are joined with a single space.
func (e *espeak) Phonemize(ctx context.Context, segment, language string) (string, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "", nil
	}

	voice := EspeakVoice(language)
	if !espeakVoicePattern.MatchString(voice) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.args(language)...)
	cmd.Stdin = strings.NewReader(segment)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if ctx.Err() == nil && isMissingVoice(msg) {
			return "", fmt.Errorf("%w: %q: espeak-ng: %s", ErrUnsupportedLanguage, language, msg)
		}

		if msg != "" {
			return "", fmt.Errorf("espeak-ng (%s): %w: %s", voice, err, msg)
		}

		return "", fmt.Errorf("espeak-ng (%s): %w", voice, err)
	}

	return joinClauses(&stdout)
}

// isMissingVoice reports whether espeak-ng's stderr says the requested voice
// does not exist.
func isMissingVoice(stderr string) bool {
	msg := strings.ToLower(stderr)
	if !strings.Contains(msg, "voice") {
		return false
	}

	for _, hint := range []string{"not found", "failed to read", "failed to load", "unknown"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}

	return false
}

func joinClauses(out *bytes.Buffer) (string, error) {
	var clauses []string

	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			clauses = append(clauses, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read espeak-ng output: %w", err)
	}

	return strings.Join(clauses, " "), nil
}

func (e *espeak) Close() error { return nil }
