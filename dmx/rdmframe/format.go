package rdmframe

import (
	"encoding/binary"
	"errors"
)

// Format describes the layout of an RDM parameter's data, field by field:
//   'b' - one byte
//   'w' - 16-bit word, big-endian
//   'd' - 32-bit dword, big-endian
//   'u' - 6-byte UID
//   'a' - ASCII text running to the end of the parameter data
//   'x' - one reserved/ignored byte
// A field letter may repeat ("www") to lay out several fields of the same
// width; a trailing '$' fixes the format's total length so Encode/Decode
// can validate it. Unlike Go's struct tags, this file is read left to
// right once per value, matching how the original RDM parameter
// definitions describe a fixed field sequence rather than a type.
type Format string

var errFormat = errors.New("rdmframe: value does not match format")
var errFormatLen = errors.New("rdmframe: format length mismatch")

// EncodeFields writes values into dst according to f, returning the number
// of bytes written. values must supply one entry per non-'x','$' field:
// byte for 'b', uint16 for 'w', uint32 for 'd', UID for 'u', string for 'a'.
func EncodeFields(f Format, dst []byte, values ...interface{}) (int, error) {
	vi := 0
	n := 0

	for i := 0; i < len(f); i++ {
		switch f[i] {
		case 'b':
			if n >= len(dst) {
				return 0, errShortBuffer
			}
			b, ok := values[vi].(byte)
			if !ok {
				return 0, errFormat
			}
			dst[n] = b
			n++
			vi++
		case 'w':
			if n+2 > len(dst) {
				return 0, errShortBuffer
			}
			w, ok := values[vi].(uint16)
			if !ok {
				return 0, errFormat
			}
			binary.BigEndian.PutUint16(dst[n:n+2], w)
			n += 2
			vi++
		case 'd':
			if n+4 > len(dst) {
				return 0, errShortBuffer
			}
			d, ok := values[vi].(uint32)
			if !ok {
				return 0, errFormat
			}
			binary.BigEndian.PutUint32(dst[n:n+4], d)
			n += 4
			vi++
		case 'u':
			if n+6 > len(dst) {
				return 0, errShortBuffer
			}
			u, ok := values[vi].(UID)
			if !ok {
				return 0, errFormat
			}
			copy(dst[n:n+6], u[:])
			n += 6
			vi++
		case 'a':
			s, ok := values[vi].(string)
			if !ok {
				return 0, errFormat
			}
			if n+len(s) > len(dst) {
				return 0, errShortBuffer
			}
			n += copy(dst[n:], s)
			vi++
		case 'x':
			if n >= len(dst) {
				return 0, errShortBuffer
			}
			dst[n] = 0
			n++
		case '$':
			// length fixed by the format, nothing to write
		default:
			return 0, errFormat
		}
	}

	return n, nil
}

// DecodeFields reads buf according to f and returns one value per
// non-'x','$' field, in field order, with the same dynamic types
// EncodeFields accepts.
func DecodeFields(f Format, buf []byte) ([]interface{}, error) {
	var out []interface{}
	n := 0

	for i := 0; i < len(f); i++ {
		switch f[i] {
		case 'b':
			if n >= len(buf) {
				return nil, errFormatLen
			}
			out = append(out, buf[n])
			n++
		case 'w':
			if n+2 > len(buf) {
				return nil, errFormatLen
			}
			out = append(out, binary.BigEndian.Uint16(buf[n:n+2]))
			n += 2
		case 'd':
			if n+4 > len(buf) {
				return nil, errFormatLen
			}
			out = append(out, binary.BigEndian.Uint32(buf[n:n+4]))
			n += 4
		case 'u':
			if n+6 > len(buf) {
				return nil, errFormatLen
			}
			var u UID
			copy(u[:], buf[n:n+6])
			out = append(out, u)
			n += 6
		case 'a':
			out = append(out, string(buf[n:]))
			n = len(buf)
		case 'x':
			if n >= len(buf) {
				return nil, errFormatLen
			}
			n++
		case '$':
			if n != len(buf) {
				return nil, errFormatLen
			}
		default:
			return nil, errFormat
		}
	}

	return out, nil
}
