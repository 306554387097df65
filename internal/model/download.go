// Package model fetches and verifies Kokoro model bundles.
package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/example/go-kokoro-tts/internal/onnx"
	"github.com/example/go-kokoro-tts/internal/voice"
)

const (
	// DefaultEndpoint is the Hugging Face hub.
	DefaultEndpoint = "https://huggingface.co"
	// LockName is the lock manifest written next to the bundle.
	LockName = "download-manifest.lock.json"

	vocabFile = "vocab.txt"
	voicesDir = "voices"
)

type DownloadOptions struct {
	Repo     string
	Revision string
	OutDir   string
	HFToken  string
	// Voices are voice ids fetched from voices/<id>.bin.
	Voices   []string
	Endpoint string
	Client   *http.Client
	Stdout   io.Writer
	Stderr   io.Writer
}

type ErrAccessDenied struct {
	Repo string
	Msg  string
}

func (e *ErrAccessDenied) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("access denied for %s", e.Repo)
}

// ModelFile is one file of a bundle at a pinned revision.
type ModelFile struct {
	Filename string
	Revision string
}

type lockManifest struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

type downloader struct {
	opts DownloadOptions
	lock lockManifest
}

// Download fetches manifest.json, the graphs it lists, vocab.txt and the
// requested voices into OutDir. Checksums come from the lock manifest, then
// from hub metadata; files without either are hashed on first download and
// pinned in the lock.
func Download(ctx context.Context, opts DownloadOptions) error {
	if opts.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if opts.OutDir == "" {
		return fmt.Errorf("out dir is required")
	}
	for _, id := range opts.Voices {
		if err := voice.ValidateName(id); err != nil {
			return err
		}
	}
	if opts.Revision == "" {
		opts.Revision = "main"
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 0}
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockName)
	d := &downloader{opts: opts, lock: readLockManifest(lockPath)}
	if d.lock.Files == nil {
		d.lock.Files = make(map[string]lockRecord)
	}
	d.lock.Repo = opts.Repo
	d.lock.Generated = time.Now().UTC().Format(time.RFC3339)

	if err := d.fetch(ctx, onnx.ManifestName); err != nil {
		return err
	}

	graphs, err := manifestFiles(filepath.Join(opts.OutDir, onnx.ManifestName))
	if err != nil {
		return err
	}

	files := append(graphs, vocabFile)
	for _, id := range opts.Voices {
		files = append(files, path.Join(voicesDir, id+".bin"))
	}

	for _, name := range files {
		if err := d.fetch(ctx, name); err != nil {
			return err
		}
	}

	if err := writeLockManifest(lockPath, d.lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)

	return checkBundle(opts.OutDir, opts.Voices)
}

func (d *downloader) fetch(ctx context.Context, name string) error {
	f := ModelFile{Filename: name, Revision: d.opts.Revision}

	expected := ""
	if lr, ok := d.lock.Files[name]; ok && lr.Revision == f.Revision && isSHA256Hex(lr.SHA256) {
		expected = strings.ToLower(lr.SHA256)
	} else {
		sum, err := resolveChecksumFromMetadata(ctx, d.opts.Client, d.resolveURL(f), d.opts.Repo, name, d.opts.HFToken)
		if err != nil {
			return err
		}
		expected = sum
	}

	localPath := filepath.Join(d.opts.OutDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create local subdir: %w", err)
	}

	if expected != "" {
		ok, err := existingMatches(localPath, expected)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(d.opts.Stdout, "skip %s (checksum match)\n", name)
			d.lock.Files[name] = lockRecord{Revision: f.Revision, SHA256: expected}
			return nil
		}
	}

	fmt.Fprintf(d.opts.Stdout, "download %s@%s -> %s\n", name, f.Revision, localPath)
	actual, err := downloadWithProgress(ctx, d.opts.Client, d.resolveURL(f), d.opts.Repo, d.opts.HFToken, localPath, d.opts.Stdout)
	if err != nil {
		return err
	}

	switch {
	case expected == "":
		fmt.Fprintf(d.opts.Stderr, "no published checksum for %s; pinned sha256=%s\n", name, actual)
	case actual != expected:
		return fmt.Errorf("checksum mismatch for %s: expected %s got %s", name, expected, actual)
	default:
		fmt.Fprintf(d.opts.Stdout, "verified %s (sha256=%s)\n", name, actual)
	}

	d.lock.Files[name] = lockRecord{Revision: f.Revision, SHA256: actual}

	return nil
}

func (d *downloader) resolveURL(file ModelFile) string {
	return resolveURL(d.opts.Endpoint, d.opts.Repo, file)
}

// manifestFiles lists the graph filenames of a downloaded manifest. Absolute
// or escaping paths are rejected.
func manifestFiles(manifestPath string) ([]string, error) {
	b, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var raw struct {
		Graphs []struct {
			Filename string `json:"filename"`
		} `json:"graphs"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	out := make([]string, 0, len(raw.Graphs))
	for _, g := range raw.Graphs {
		name := path.Clean(filepath.ToSlash(g.Filename))
		if g.Filename == "" || path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return nil, fmt.Errorf("manifest graph file %q is not a bundle-relative path", g.Filename)
		}
		out = append(out, name)
	}

	return out, nil
}

// checkBundle loads what was downloaded the way the synthesizer will.
func checkBundle(dir string, voices []string) error {
	if _, err := onnx.LoadManifest(filepath.Join(dir, onnx.ManifestName)); err != nil {
		return fmt.Errorf("downloaded bundle: %w", err)
	}

	for _, id := range voices {
		if _, err := voice.LoadStyleTable(filepath.Join(dir, voicesDir, id+".bin")); err != nil {
			return fmt.Errorf("downloaded voice %q: %w", id, err)
		}
	}

	return nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}
	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func downloadWithProgress(ctx context.Context, client *http.Client, url, repo, token, outPath string, stdout io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &ErrAccessDenied{
			Repo: repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", repo),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed for %s: %s", path.Base(url), resp.Status)
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	pw := &progressWriter{w: io.MultiWriter(fh, h), out: stdout, total: resp.ContentLength, last: time.Now()}

	if _, err := io.Copy(pw, resp.Body); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download read failed: %w", err)
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// progressWriter reports bytes written at most every 700ms.
type progressWriter struct {
	w       io.Writer
	out     io.Writer
	total   int64
	written int64
	last    time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)

	if time.Since(p.last) > 700*time.Millisecond {
		if p.total > 0 {
			pct := float64(p.written) * 100 / float64(p.total)
			fmt.Fprintf(p.out, "  progress: %.1f%% (%d/%d bytes)\n", pct, p.written, p.total)
		} else {
			fmt.Fprintf(p.out, "  progress: %d bytes\n", p.written)
		}
		p.last = time.Now()
	}

	return n, err
}

// resolveChecksumFromMetadata asks the hub for a file's sha256. LFS files
// publish it in X-Linked-Etag; small git-stored files only carry a git hash,
// in which case it returns "".
func resolveChecksumFromMetadata(ctx context.Context, client *http.Client, url, repo, name, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata request failed for %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &ErrAccessDenied{
			Repo: repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", repo),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return "", fmt.Errorf("metadata request failed for %s: %s", name, resp.Status)
	}

	for _, key := range []string{"X-Linked-Etag", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}

	return "", nil
}

func resolveURL(endpoint, repo string, file ModelFile) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", strings.TrimRight(endpoint, "/"), repo, file.Revision, file.Filename)
}

func setAuth(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"")
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")
	return v
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) lockManifest {
	b, err := os.ReadFile(path)
	if err != nil {
		return lockManifest{}
	}
	var out lockManifest
	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{}
	}
	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}
	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}
