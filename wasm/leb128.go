package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Variable-length integer codec for the binary format. Readers reject
// encodings wider than the target type instead of wrapping.

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

func readUnsigned[T uint32 | uint64](r io.ByteReader, width uint) (T, error) {
	var v T
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= T(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= width {
			return 0, ErrOverflow
		}
	}
}

func readSigned[T int32 | int64](r io.ByteReader, width uint) (T, error) {
	var v T
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= T(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < width && b&0x40 != 0 {
				v |= ^T(0) << shift
			}
			return v, nil
		}
		if shift >= width {
			return 0, ErrOverflow
		}
	}
}

func writeUnsigned[T uint32 | uint64](w *bytes.Buffer, v T) {
	for {
		b := byte(v) & 0x7f
		v >>= 7
		if v == 0 {
			w.WriteByte(b)
			return
		}
		w.WriteByte(b | 0x80)
	}
}

func writeSigned[T int32 | int64](w *bytes.Buffer, v T) {
	for {
		b := byte(v) & 0x7f
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.WriteByte(b)
			return
		}
		w.WriteByte(b | 0x80)
	}
}

// ReadLEB128u reads an unsigned 32-bit value.
func ReadLEB128u(r io.ByteReader) (uint32, error) {
	return readUnsigned[uint32](r, 32)
}

// ReadLEB128u64 reads an unsigned 64-bit value.
func ReadLEB128u64(r io.ByteReader) (uint64, error) {
	return readUnsigned[uint64](r, 64)
}

// ReadLEB128s reads a signed 32-bit value.
func ReadLEB128s(r io.ByteReader) (int32, error) {
	return readSigned[int32](r, 32)
}

// ReadLEB128s64 reads a signed 64-bit value.
func ReadLEB128s64(r io.ByteReader) (int64, error) {
	return readSigned[int64](r, 64)
}

// WriteLEB128u writes an unsigned 32-bit value.
func WriteLEB128u(w *bytes.Buffer, v uint32) {
	writeUnsigned(w, v)
}

// WriteLEB128u64 writes an unsigned 64-bit value.
func WriteLEB128u64(w *bytes.Buffer, v uint64) {
	writeUnsigned(w, v)
}

// WriteLEB128s writes a signed 32-bit value.
func WriteLEB128s(w *bytes.Buffer, v int32) {
	writeSigned(w, v)
}

// WriteLEB128s64 writes a signed 64-bit value.
func WriteLEB128s64(w *bytes.Buffer, v int64) {
	writeSigned(w, v)
}

// ReadFloat32 reads a little-endian float32.
func ReadFloat32(r io.Reader) (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[:])), nil
}

// ReadFloat64 reads a little-endian float64.
func ReadFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

// WriteFloat32 writes a little-endian float32.
func WriteFloat32(w *bytes.Buffer, v float32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	w.Write(buf[:])
}

// WriteFloat64 writes a little-endian float64.
func WriteFloat64(w *bytes.Buffer, v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.Write(buf[:])
}
