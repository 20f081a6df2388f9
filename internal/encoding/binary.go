// Package encoding provides binary encoding utilities for SMB1 protocol messages.
// All SMB1 integers are little-endian.
package encoding

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrBufferTooSmall is returned when a write would run past the destination.
	// Destinations are never grown implicitly.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrShortBuffer is returned when a read would run past the source bound.
	ErrShortBuffer = errors.New("short buffer")
)

// PutUint16LE writes a uint16 in little-endian format to the buffer.
func PutUint16LE(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// PutUint32LE writes a uint32 in little-endian format to the buffer.
func PutUint32LE(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// PutUint64LE writes a uint64 in little-endian format to the buffer.
func PutUint64LE(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

// Uint16LE reads a uint16 in little-endian format from the buffer.
func Uint16LE(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

// Uint32LE reads a uint32 in little-endian format from the buffer.
func Uint32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// Uint64LE reads a uint64 in little-endian format from the buffer.
func Uint64LE(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// AppendUint16LE appends a uint16 in little-endian format to the buffer.
func AppendUint16LE(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

// AppendUint32LE appends a uint32 in little-endian format to the buffer.
func AppendUint32LE(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// The *At helpers are the offset-addressed forms used by the message codecs.
// Writers return the number of bytes written and readers the number of bytes
// consumed; both fail rather than touch bytes outside b.

// PutUint8At writes v at off.
func PutUint8At(b []byte, off int, v uint8) (int, error) {
	if off < 0 || off+1 > len(b) {
		return 0, ErrBufferTooSmall
	}
	b[off] = v
	return 1, nil
}

// PutUint16At writes v at off.
func PutUint16At(b []byte, off int, v uint16) (int, error) {
	if off < 0 || off+2 > len(b) {
		return 0, ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint16(b[off:], v)
	return 2, nil
}

// PutUint32At writes v at off.
func PutUint32At(b []byte, off int, v uint32) (int, error) {
	if off < 0 || off+4 > len(b) {
		return 0, ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint32(b[off:], v)
	return 4, nil
}

// PutUint64At writes v at off.
func PutUint64At(b []byte, off int, v uint64) (int, error) {
	if off < 0 || off+8 > len(b) {
		return 0, ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint64(b[off:], v)
	return 8, nil
}

// Uint8At reads a byte at off.
func Uint8At(b []byte, off int) (uint8, int, error) {
	if off < 0 || off+1 > len(b) {
		return 0, 0, ErrShortBuffer
	}
	return b[off], 1, nil
}

// Uint16At reads a uint16 at off.
func Uint16At(b []byte, off int) (uint16, int, error) {
	if off < 0 || off+2 > len(b) {
		return 0, 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint16(b[off:]), 2, nil
}

// Uint32At reads a uint32 at off.
func Uint32At(b []byte, off int) (uint32, int, error) {
	if off < 0 || off+4 > len(b) {
		return 0, 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(b[off:]), 4, nil
}

// Uint64At reads a uint64 at off.
func Uint64At(b []byte, off int) (uint64, int, error) {
	if off < 0 || off+8 > len(b) {
		return 0, 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(b[off:]), 8, nil
}
