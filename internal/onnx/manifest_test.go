package onnx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const stageManifest = `{
  "graphs": [
    {
      "name": "duration",
      "filename": "duration.onnx",
      "inputs": [
        {"name":"input_ids","dtype":"int64","shape":[1,96]},
        {"name":"ref_s","dtype":"float","shape":[1,256]}
      ],
      "outputs": [{"name":"d","dtype":"float","shape":[1,96,640]}]
    },
    {
      "name": "decoder",
      "filename": "decoder.onnx",
      "inputs": [{"name":"asr","dtype":"float","shape":[1,512,"frames"]}],
      "outputs": [{"name":"x","dtype":"float","shape":[1,22,"frames"]}]
    }
  ]
}`

func writeManifest(t *testing.T, dir, body string, files ...string) string {
	t.Helper()

	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("fake"), 0o644); err != nil {
			t.Fatalf("write fake onnx file: %v", err)
		}
	}

	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	return path
}

func TestLoadManifest(t *testing.T) {
	tmp := t.TempDir()
	path := writeManifest(t, tmp, stageManifest, "duration.onnx", "decoder.onnx")

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	if m.Path() != path {
		t.Errorf("Path() = %q; want %q", m.Path(), path)
	}

	all := m.Graphs()
	if len(all) != 2 || all[0].Name != "duration" || all[1].Name != "decoder" {
		t.Fatalf("unexpected graphs: %+v", all)
	}

	g, ok := m.Graph("duration")
	if !ok {
		t.Fatal("expected duration graph")
	}

	if g.Path != filepath.Join(tmp, "duration.onnx") {
		t.Fatalf("unexpected graph path: %s", g.Path)
	}

	if in, ok := g.Input("ref_s"); !ok || in.DType != "float" {
		t.Fatalf("unexpected ref_s port: %+v", in)
	}

	if _, ok := g.Output("missing"); ok {
		t.Fatal("did not expect missing output")
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		files   []string
		wantErr string
	}{
		{
			name:    "missing graph file",
			body:    `{"graphs":[{"name":"a","filename":"a.onnx"}]}`,
			wantErr: "graph file for",
		},
		{
			name:    "no graphs",
			body:    `{"graphs":[]}`,
			wantErr: "no graphs",
		},
		{
			name:    "empty name",
			body:    `{"graphs":[{"name":"","filename":"a.onnx"}]}`,
			files:   []string{"a.onnx"},
			wantErr: "empty name",
		},
		{
			name:    "duplicate",
			body:    `{"graphs":[{"name":"a","filename":"a.onnx"},{"name":"a","filename":"a.onnx"}]}`,
			files:   []string{"a.onnx"},
			wantErr: "duplicate",
		},
		{
			name:    "bad json",
			body:    `{`,
			wantErr: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tt.body, tt.files...)

			_, err := LoadManifest(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := LoadManifest(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestNodeInfoDims(t *testing.T) {
	n := NodeInfo{Name: "x", DType: "float", Shape: []any{1.0, 22.0, "frames"}}

	dims, err := n.Dims()
	if err != nil {
		t.Fatalf("Dims: %v", err)
	}

	want := []int64{1, 22, -1}
	for i := range want {
		if dims[i] != want[i] {
			t.Fatalf("Dims() = %v; want %v", dims, want)
		}
	}
}

func TestNodeInfoCheck(t *testing.T) {
	node := NodeInfo{Name: "input_ids", DType: "int64", Shape: []any{1.0, "tokens"}}

	ok, _ := NewTensor(make([]int64, 8), []int64{1, 8})
	if err := node.Check(ok); err != nil {
		t.Fatalf("Check(ok) = %v", err)
	}

	wrongType, _ := NewTensor(make([]float32, 8), []int64{1, 8})
	wrongRank, _ := NewTensor(make([]int64, 8), []int64{8})
	wrongDim, _ := NewTensor(make([]int64, 8), []int64{2, 4})

	for name, tensor := range map[string]*Tensor{
		"dtype": wrongType,
		"rank":  wrongRank,
		"dim":   wrongDim,
	} {
		if err := node.Check(tensor); err == nil || !strings.Contains(err.Error(), name) {
			t.Errorf("Check(%s) = %v; want %s error", name, err, name)
		}
	}

	untyped := NodeInfo{Name: "any", DType: "float"}
	if err := untyped.Check(wrongType); err != nil {
		t.Errorf("node without shape should accept any rank: %v", err)
	}
}
