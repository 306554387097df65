package onnx

import (
	"fmt"
	"math"
	"strings"
)

type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
	DTypeUint8   TensorDType = "uint8"
)

// Tensor is a dense host-side buffer exchanged with ONNX Runtime. Only the
// element types the stage graphs use are supported: float32 features, int64
// ids and the uint8 padding mask.
type Tensor struct {
	dtype TensorDType
	shape []int64
	data  any
}

func NewTensor[T ~int64 | ~float32 | ~uint8](data []T, shape []int64) (*Tensor, error) {
	if err := validateShapeAgainstData(shape, len(data)); err != nil {
		return nil, err
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}

	var zero T
	switch any(zero).(type) {
	case float32:
		buf := make([]float32, len(data))
		for i, v := range data {
			buf[i] = float32(v)
		}
		t.dtype, t.data = DTypeFloat32, buf
	case int64:
		buf := make([]int64, len(data))
		for i, v := range data {
			buf[i] = int64(v)
		}
		t.dtype, t.data = DTypeInt64, buf
	case uint8:
		buf := make([]uint8, len(data))
		for i, v := range data {
			buf[i] = uint8(v)
		}
		t.dtype, t.data = DTypeUint8, buf
	default:
		return nil, fmt.Errorf("unsupported tensor data type %T", zero)
	}

	return t, nil
}

// NewZeroTensor allocates a zero-filled tensor from a manifest node
// description. Symbolic dimensions resolve to 1.
func NewZeroTensor(dtype string, shape []any) (*Tensor, error) {
	canonical, err := canonicalDType(dtype)
	if err != nil {
		return nil, err
	}

	resolved, err := resolveShape(shape)
	if err != nil {
		return nil, err
	}

	count, err := elementCount(resolved)
	if err != nil {
		return nil, err
	}

	switch canonical {
	case DTypeInt64:
		return NewTensor(make([]int64, count), resolved)
	case DTypeUint8:
		return NewTensor(make([]uint8, count), resolved)
	default:
		return NewTensor(make([]float32, count), resolved)
	}
}

func (t *Tensor) DType() TensorDType {
	return t.dtype
}

func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Len is the number of elements.
func (t *Tensor) Len() int {
	switch v := t.data.(type) {
	case []float32:
		return len(v)
	case []int64:
		return len(v)
	case []uint8:
		return len(v)
	}

	return 0
}

// Float32 returns the backing float32 slice without copying.
func (t *Tensor) Float32() ([]float32, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}

	v, ok := t.data.([]float32)
	if !ok {
		return nil, fmt.Errorf("expected float32 tensor, got %s", t.dtype)
	}

	return v, nil
}

// Int64 returns the backing int64 slice without copying.
func (t *Tensor) Int64() ([]int64, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}

	v, ok := t.data.([]int64)
	if !ok {
		return nil, fmt.Errorf("expected int64 tensor, got %s", t.dtype)
	}

	return v, nil
}

// Uint8 returns the backing uint8 slice without copying.
func (t *Tensor) Uint8() ([]uint8, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}

	v, ok := t.data.([]uint8)
	if !ok {
		return nil, fmt.Errorf("expected uint8 tensor, got %s", t.dtype)
	}

	return v, nil
}

// CanonicalDType maps a manifest dtype spelling such as "float" or
// "tensor(int64)" to a TensorDType.
func CanonicalDType(raw string) (TensorDType, error) {
	return canonicalDType(raw)
}

func canonicalDType(raw string) (TensorDType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.TrimPrefix(normalized, "tensor(")
	normalized = strings.TrimSuffix(normalized, ")")

	switch normalized {
	case "float", "float32":
		return DTypeFloat32, nil
	case "int64", "long":
		return DTypeInt64, nil
	case "uint8":
		return DTypeUint8, nil
	default:
		return "", fmt.Errorf("unsupported tensor dtype %q", raw)
	}
}

func resolveShape(shape []any) ([]int64, error) {
	out := make([]int64, len(shape))
	for i, dim := range shape {
		d, symbolic, err := parseDim(dim)
		if err != nil {
			return nil, fmt.Errorf("shape[%d]: %w", i, err)
		}
		if symbolic {
			d = 1
		}
		out[i] = d
	}

	return out, nil
}

// parseDim decodes one manifest dimension: a positive integer or a
// non-empty symbolic name.
func parseDim(dim any) (int64, bool, error) {
	switch v := dim.(type) {
	case float64:
		if v < 1 || v != math.Trunc(v) {
			return 0, false, fmt.Errorf("%v is not a positive integer", v)
		}
		return int64(v), false, nil
	case int:
		if v < 1 {
			return 0, false, fmt.Errorf("%d is not positive", v)
		}
		return int64(v), false, nil
	case int64:
		if v < 1 {
			return 0, false, fmt.Errorf("%d is not positive", v)
		}
		return v, false, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false, fmt.Errorf("empty symbolic dimension")
		}
		return 0, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported dimension type %T", dim)
	}
}

func validateShapeAgainstData(shape []int64, dataLen int) error {
	count, err := elementCount(shape)
	if err != nil {
		return err
	}
	if count != dataLen {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, count, dataLen)
	}

	return nil
}

func elementCount(shape []int64) (int, error) {
	count := int64(1)
	for i, dim := range shape {
		if dim < 1 {
			return 0, fmt.Errorf("shape[%d]=%d is not positive", i, dim)
		}
		if count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}
		count *= dim
	}
	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}

	return int(count), nil
}
