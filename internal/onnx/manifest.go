package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the file describing a model bundle's graphs.
const ManifestName = "manifest.json"

// NodeInfo describes one graph input or output. Shape entries are positive
// integers or symbolic names for dynamic axes.
type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// Dims returns the declared shape with symbolic axes reported as -1.
func (n NodeInfo) Dims() ([]int64, error) {
	out := make([]int64, len(n.Shape))
	for i, dim := range n.Shape {
		d, symbolic, err := parseDim(dim)
		if err != nil {
			return nil, fmt.Errorf("node %q shape[%d]: %w", n.Name, i, err)
		}
		if symbolic {
			d = -1
		}
		out[i] = d
	}

	return out, nil
}

// Check reports whether t matches the node's dtype and fixed dimensions.
func (n NodeInfo) Check(t *Tensor) error {
	want, err := canonicalDType(n.DType)
	if err != nil {
		return fmt.Errorf("node %q: %w", n.Name, err)
	}
	if t.DType() != want {
		return fmt.Errorf("node %q: dtype %s, want %s", n.Name, t.DType(), want)
	}

	dims, err := n.Dims()
	if err != nil {
		return err
	}
	if len(dims) == 0 {
		return nil
	}

	shape := t.Shape()
	if len(shape) != len(dims) {
		return fmt.Errorf("node %q: rank %d, want %d", n.Name, len(shape), len(dims))
	}
	for i, d := range dims {
		if d > 0 && shape[i] != d {
			return fmt.Errorf("node %q: dim %d is %d, want %d", n.Name, i, shape[i], d)
		}
	}

	return nil
}

// Graph is one ONNX file of the bundle with its declared ports.
type Graph struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// Input looks up an input port by name.
func (g Graph) Input(name string) (NodeInfo, bool) {
	return findNode(g.Inputs, name)
}

// Output looks up an output port by name.
func (g Graph) Output(name string) (NodeInfo, bool) {
	return findNode(g.Outputs, name)
}

// Manifest is the parsed, path-resolved manifest.json of a model bundle.
type Manifest struct {
	path   string
	graphs map[string]Graph
	order  []string
}

type manifestFile struct {
	Graphs []manifestGraph `json:"graphs"`
}

type manifestGraph struct {
	Name     string     `json:"name"`
	Filename string     `json:"filename"`
	Inputs   []NodeInfo `json:"inputs"`
	Outputs  []NodeInfo `json:"outputs"`
}

// LoadManifest reads a manifest and checks that every graph file exists.
// Relative filenames resolve against the manifest's directory.
func LoadManifest(manifestPath string) (*Manifest, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read ONNX manifest: %w", err)
	}

	var raw manifestFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ONNX manifest: %w", err)
	}
	if len(raw.Graphs) == 0 {
		return nil, errors.New("ONNX manifest has no graphs")
	}

	baseDir := filepath.Dir(manifestPath)
	m := &Manifest{
		path:   manifestPath,
		graphs: make(map[string]Graph, len(raw.Graphs)),
		order:  make([]string, 0, len(raw.Graphs)),
	}

	for _, g := range raw.Graphs {
		switch {
		case g.Name == "":
			return nil, errors.New("manifest graph has empty name")
		case g.Filename == "":
			return nil, fmt.Errorf("manifest graph %q has empty filename", g.Name)
		}
		if _, dup := m.graphs[g.Name]; dup {
			return nil, fmt.Errorf("duplicate graph name %q in manifest", g.Name)
		}

		path := g.Filename
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		path = filepath.Clean(path)

		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("graph file for %q: %w", g.Name, err)
		}

		m.graphs[g.Name] = Graph{
			Name:    g.Name,
			Path:    path,
			Inputs:  append([]NodeInfo(nil), g.Inputs...),
			Outputs: append([]NodeInfo(nil), g.Outputs...),
		}
		m.order = append(m.order, g.Name)

		slog.Debug(
			"manifest graph",
			"name", g.Name,
			"path", path,
			"inputs", nodeNames(g.Inputs),
			"outputs", nodeNames(g.Outputs),
		)
	}

	return m, nil
}

// Path is the manifest file the graphs were loaded from.
func (m *Manifest) Path() string {
	return m.path
}

func (m *Manifest) Graph(name string) (Graph, bool) {
	g, ok := m.graphs[name]
	return g, ok
}

// Graphs returns all graphs in manifest order.
func (m *Manifest) Graphs() []Graph {
	out := make([]Graph, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.graphs[name])
	}

	return out
}

func findNode(nodes []NodeInfo, name string) (NodeInfo, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
	}

	return NodeInfo{}, false
}

func nodeNames(nodes []NodeInfo) string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}
