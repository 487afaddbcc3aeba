// Package gguf decodes the self-describing GGUF quantized tensor container
// from an in-memory blob: header, key/value metadata, and tensor descriptors.
// Tensor payloads stay in the blob and are addressed by offset.
package gguf

import (
	"fmt"
)

const magicGGUF = "GGUF"

// ValueType identifies the type of a metadata value.
type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

// ArrayValue holds a homogeneous metadata array.
type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

// Value is one decoded metadata entry.
type Value struct {
	Type  ValueType
	Value any
}

// Header is the fixed GGUF preamble.
type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// TensorType identifies the GGML storage type of a tensor.
type TensorType uint32

const (
	TensorF32  TensorType = 0
	TensorF16  TensorType = 1
	TensorQ4_0 TensorType = 2
	TensorQ4_1 TensorType = 3
	TensorQ5_0 TensorType = 6
	TensorQ5_1 TensorType = 7
	TensorQ8_0 TensorType = 8
	TensorQ2_K TensorType = 10
	TensorQ3_K TensorType = 11
	TensorQ4_K TensorType = 12
	TensorQ5_K TensorType = 13
	TensorQ6_K TensorType = 14
	TensorQ8_K TensorType = 15
)

// TensorInfo describes one tensor without materializing its data.
type TensorInfo struct {
	Name   string
	Dims   []uint64
	Type   TensorType
	Offset uint64 // relative to Container.DataOffset
}

// Container is a decoded GGUF blob.
type Container struct {
	Header     Header
	KV         map[string]Value
	Tensors    []TensorInfo
	Alignment  uint64
	DataOffset uint64
	Data       []byte // the full original blob
}

// Decode parses a GGUF blob. Malformed input yields a decode error; the
// returned container references data without copying it.
func Decode(data []byte) (*Container, error) {
	r := newReader(data)

	magic, err := r.readN(4)
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != magicGGUF {
		return nil, fmt.Errorf("invalid magic: %q", string(magic))
	}
	version, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version < 2 || version > 3 {
		return nil, fmt.Errorf("unsupported GGUF version %d", version)
	}
	tensorCount, err := r.readU64()
	if err != nil {
		return nil, fmt.Errorf("read tensor count: %w", err)
	}
	kvCount, err := r.readU64()
	if err != nil {
		return nil, fmt.Errorf("read kv count: %w", err)
	}

	// counts come from the wire; bound them by what the remaining bytes could
	// encode before allocating. A kv entry is at least a key length and a value
	// type, a tensor record at least a name length, dim count, type and offset.
	if kvCount > r.remaining()/12 {
		return nil, fmt.Errorf("kv count %d exceeds blob size %d", kvCount, len(data))
	}
	if tensorCount > r.remaining()/24 {
		return nil, fmt.Errorf("tensor count %d exceeds blob size %d", tensorCount, len(data))
	}

	kv := make(map[string]Value, kvCount)
	for i := uint64(0); i < kvCount; i++ {
		key, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("read key %d: %w", i, err)
		}
		vtypeU32, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("read value type for %s: %w", key, err)
		}
		vtype := ValueType(vtypeU32)
		val, err := readValue(r, vtype)
		if err != nil {
			return nil, fmt.Errorf("read value for %s: %w", key, err)
		}
		kv[key] = Value{Type: vtype, Value: val}
	}

	tensors := make([]TensorInfo, 0, tensorCount)
	for i := uint64(0); i < tensorCount; i++ {
		name, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("read tensor name %d: %w", i, err)
		}
		nDim, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("read tensor dims %s: %w", name, err)
		}
		if nDim > 4 {
			return nil, fmt.Errorf("tensor %s: %d dimensions exceeds GGML limit", name, nDim)
		}
		dims := make([]uint64, nDim)
		for d := range dims {
			v, err := r.readU64()
			if err != nil {
				return nil, fmt.Errorf("read tensor dim %s[%d]: %w", name, d, err)
			}
			dims[d] = v
		}
		ttypeU32, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("read tensor type %s: %w", name, err)
		}
		offset, err := r.readU64()
		if err != nil {
			return nil, fmt.Errorf("read tensor offset %s: %w", name, err)
		}
		tensors = append(tensors, TensorInfo{
			Name:   name,
			Dims:   dims,
			Type:   TensorType(ttypeU32),
			Offset: offset,
		})
	}

	alignment := uint64(32)
	if v, ok := kv["general.alignment"]; ok {
		if u, ok := asUint64(v.Value); ok && u > 0 {
			alignment = u
		}
	}
	dataOffset := align(uint64(r.off), alignment)
	if tensorCount > 0 && dataOffset > uint64(len(data)) {
		return nil, fmt.Errorf("data section offset %d beyond blob size %d", dataOffset, len(data))
	}

	return &Container{
		Header:     Header{Version: version, TensorCount: tensorCount, KVCount: kvCount},
		KV:         kv,
		Tensors:    tensors,
		Alignment:  alignment,
		DataOffset: dataOffset,
		Data:       data,
	}, nil
}

// Architecture returns the general.architecture metadata value, if present.
func (c *Container) Architecture() (string, bool) {
	return c.Str("general.architecture")
}

// Str returns a string metadata value by key.
func (c *Container) Str(key string) (string, bool) {
	v, ok := c.KV[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value.(string)
	return s, ok
}

// Uint returns an unsigned metadata value by key, converting any integer width.
func (c *Container) Uint(key string) (uint64, bool) {
	v, ok := c.KV[key]
	if !ok {
		return 0, false
	}
	return asUint64(v.Value)
}

// Float returns a floating-point metadata value by key.
func (c *Container) Float(key string) (float64, bool) {
	v, ok := c.KV[key]
	if !ok {
		return 0, false
	}
	switch f := v.Value.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	return 0, false
}

// Tensor looks up a tensor descriptor by name.
func (c *Container) Tensor(name string) (TensorInfo, bool) {
	for _, t := range c.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorInfo{}, false
}

// Elements returns the flat element count of t.
func (t TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// ByteSize returns the storage size of t, or 0 for a type whose layout this
// package does not know.
func (t TensorInfo) ByteSize() uint64 {
	n := t.Elements()
	switch t.Type {
	case TensorF32:
		return n * 4
	case TensorF16:
		return n * 2
	case TensorQ8_0:
		// blocks of 32 elements: one f16 scale plus 32 int8 quants
		if n%32 != 0 {
			return 0
		}
		return (n / 32) * 34
	}
	return 0
}

// TensorData returns the raw payload bytes of t within the data section.
func (c *Container) TensorData(t TensorInfo) ([]byte, error) {
	size := t.ByteSize()
	if size == 0 {
		return nil, fmt.Errorf("tensor %s: unsupported storage type %d", t.Name, uint32(t.Type))
	}
	start := c.DataOffset + t.Offset
	end := start + size
	if end > uint64(len(c.Data)) || end < start {
		return nil, fmt.Errorf("tensor %s: payload [%d, %d) beyond blob size %d", t.Name, start, end, len(c.Data))
	}
	return c.Data[start:end], nil
}

func readValue(r *reader, vtype ValueType) (any, error) {
	switch vtype {
	case TypeUint8:
		return r.readU8()
	case TypeInt8:
		v, err := r.readU8()
		return int8(v), err
	case TypeUint16:
		return r.readU16()
	case TypeInt16:
		v, err := r.readU16()
		return int16(v), err
	case TypeUint32:
		return r.readU32()
	case TypeInt32:
		v, err := r.readU32()
		return int32(v), err
	case TypeUint64:
		return r.readU64()
	case TypeInt64:
		v, err := r.readU64()
		return int64(v), err
	case TypeFloat32:
		return r.readF32()
	case TypeFloat64:
		return r.readF64()
	case TypeBool:
		v, err := r.readU8()
		if err != nil {
			return false, err
		}
		return v != 0, nil
	case TypeString:
		return r.readString()
	case TypeArray:
		elemTypeU32, err := r.readU32()
		if err != nil {
			return nil, err
		}
		elemType := ValueType(elemTypeU32)
		count, err := r.readU64()
		if err != nil {
			return nil, err
		}
		if count > r.remaining() {
			return nil, fmt.Errorf("array length %d exceeds remaining %d bytes", count, r.remaining())
		}
		values := make([]any, 0, count)
		for i := uint64(0); i < count; i++ {
			v, err := readValue(r, elemType)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: elemType, Values: values}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %d", uint32(vtype))
	}
}

func align(offset, alignment uint64) uint64 {
	if alignment == 0 {
		return offset
	}
	rem := offset % alignment
	if rem == 0 {
		return offset
	}
	return offset + (alignment - rem)
}

func asUint64(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int8:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int16:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int32:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	default:
		return 0, false
	}
}
