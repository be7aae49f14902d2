/*
Package protocol implements the byte-level substrate of the replicast
wire format: a compact TLV (type-length-value) record encoding plus the
variable-width integer and float packing used inside record bodies.

A record is a one-letter type ('A'-'Z'), a length, and a body. Three
header layouts are chosen automatically by body size:

 1. tiny, 1 byte: ['0'+bodylen] for bodies of 0-9 bytes (the letter is
    normalized away; only available when the writer passes a lowercase
    type, signalling the reader does not rely on the letter);
 2. short, 2 bytes: [lowercase letter, bodylen] for bodies up to 255;
 3. long, 5 bytes: [uppercase letter, uint32 little-endian length].

Records concatenate freely; Split cuts a streamed buffer back into
whole records, leaving any trailing partial record for the next read.
*/
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// CaseBit flips an ASCII letter between upper and lower case.
const CaseBit byte = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete TLV data")
	ErrBadRecord  = errors.New("bad TLV record")

	ErrAddressInvalid    = errors.New("the address is invalid")
	ErrAddressDuplicated = errors.New("the address is already used")
	ErrAddressUnknown    = errors.New("address unknown")
)

// ProbeHeader inspects the header of the record at the start of data.
// lit is the canonical (uppercase) record type, '0' for tiny records,
// '-' for a malformed header, or 0 when data is too short to tell.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	b := data[0]
	switch {
	case b >= '0' && b <= '9': // tiny
		return '0', 1, int(b - '0')
	case b >= 'a' && b <= 'z': // short
		if len(data) < 2 {
			return 0, 0, 0
		}
		return b - CaseBit, 2, int(data[1])
	case b >= 'A' && b <= 'Z': // long
		if len(data) < 5 {
			return 0, 0, 0
		}
		l := binary.LittleEndian.Uint32(data[1:5])
		if l > 0x7fffffff {
			return '-', 0, 0
		}
		return b, 5, int(l)
	default:
		return '-', 0, 0
	}
}

// AppendHeader appends a record header, picking the shortest layout
// that fits. A lowercase lit permits the tiny layout.
func AppendHeader(into []byte, lit byte, bodylen int) []byte {
	up := lit &^ CaseBit
	if up < 'A' || up > 'Z' {
		panic("TLV record types are A..Z")
	}
	switch {
	case bodylen < 10 && lit&CaseBit != 0:
		return append(into, byte('0'+bodylen))
	case bodylen <= 0xff:
		return append(into, up|CaseBit, byte(bodylen))
	case bodylen <= 0x7fffffff:
		into = append(into, up)
		return binary.LittleEndian.AppendUint32(into, uint32(bodylen))
	default:
		panic("oversized TLV record")
	}
}

// Append appends one complete record assembled from body parts.
func Append(into []byte, lit byte, body ...[]byte) []byte {
	into = AppendHeader(into, lit, totalLen(body))
	for _, b := range body {
		into = append(into, b...)
	}
	return into
}

// Record makes a fresh record with pre-sized capacity.
func Record(lit byte, body ...[]byte) []byte {
	return Append(make([]byte, 0, totalLen(body)+5), lit, body...)
}

// TinyRecord is Record with the tiny layout allowed.
func TinyRecord(lit byte, body []byte) []byte {
	return Record(lit|CaseBit, body)
}

// Take cuts the record of type lit off the front of trusted data.
// Returns nil body on a type mismatch, (nil, data) when incomplete.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data
	}
	if flit != lit && flit != '0' {
		return nil, nil
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:]
}

// TakeAny cuts whatever record comes first, reporting its type.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || flit == '-' || hdrlen+bodylen > len(data) {
		return 0, nil, nil
	}
	return flit, data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:]
}

// TakeWary is Take for untrusted input, with explicit errors.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == '-' {
		return nil, nil, ErrBadRecord
	}
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, fmt.Errorf("%w: want '%c', got '%c'", ErrBadRecord, lit, flit)
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}

// TakeAnyWary is TakeAny for untrusted input, with explicit errors.
func TakeAnyWary(data []byte) (lit byte, body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == '-' {
		return 0, nil, nil, ErrBadRecord
	}
	if flit == 0 || hdrlen+bodylen > len(data) {
		return 0, nil, data, ErrIncomplete
	}
	return flit, data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}

// Split consumes all whole records from a streamed buffer. A trailing
// partial record is left in the buffer and reported as ErrIncomplete
// only when nothing whole was read; a malformed header is ErrBadRecord.
func Split(data *bytes.Buffer) (recs Records, err error) {
	for data.Len() > 0 {
		lit, hlen, blen := ProbeHeader(data.Bytes())
		if lit == '-' {
			if len(recs) == 0 {
				err = ErrBadRecord
			}
			return
		}
		if lit == 0 || hlen+blen > data.Len() { // wait for more bytes
			return
		}
		rec := make([]byte, hlen+blen)
		if _, err = data.Read(rec); err != nil {
			return
		}
		recs = append(recs, rec)
	}
	return
}

// OpenHeader starts a streamed record with a length placeholder; the
// body is appended by the caller and CloseHeader patches the length.
// Always the long layout.
func OpenHeader(buf []byte, lit byte) (bookmark int, res []byte) {
	lit &^= CaseBit
	if lit < 'A' || lit > 'Z' {
		panic("TLV record types are A..Z")
	}
	res = append(buf, lit, 0, 0, 0, 0)
	return len(res), res
}

// CloseHeader finalizes a record started by OpenHeader.
func CloseHeader(buf []byte, bookmark int) {
	if bookmark < 5 || len(buf) < bookmark {
		panic("CloseHeader: bad bookmark")
	}
	binary.LittleEndian.PutUint32(buf[bookmark-4:bookmark], uint32(len(buf)-bookmark))
}

func totalLen(body [][]byte) (sum int) {
	for _, b := range body {
		sum += len(b)
	}
	return
}
