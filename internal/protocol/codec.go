package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Wire layout offsets, counted from the start of a frame:
//
//	offset 0  : size_field      (4 bytes, little-endian int32)
//	offset 4  : request_id      (4 bytes, little-endian int32)
//	offset 8  : type_code       (4 bytes, little-endian int32)
//	offset 12 : body            (size_field - 10 bytes)
//	          : body_terminator (1 byte, 0x00)
//	          : pad_terminator  (1 byte, 0x00)
const (
	sizeFieldLen  = 4
	requestIDLen  = 4
	typeCodeLen   = 4
	terminatorLen = 2

	// fixedHeaderLen is everything after size_field but before body:
	// request_id + type_code.
	fixedHeaderLen = requestIDLen + typeCodeLen

	// minSizeField is the smallest legal size_field: request_id + type_code
	// + two terminator bytes, with an empty body.
	minSizeField = fixedHeaderLen + terminatorLen

	// DefaultMaxFrameSize is the default value of max_frame_size.
	DefaultMaxFrameSize = 4096
)

var (
	// ErrTooLarge is returned by Encode when the packet's body would
	// produce a frame larger than the configured max_frame_size.
	ErrTooLarge = errors.New("protocol: encoded frame exceeds max frame size")

	// ErrInvalidFrame is the base error wrapped by every Invalid decode
	// outcome. It is unrecoverable for the connection that produced it.
	ErrInvalidFrame = errors.New("protocol: invalid frame")
)

// Outcome classifies the result of TryDecodeOne.
type Outcome int

const (
	// Frame means a complete, valid packet was decoded.
	Frame Outcome = iota
	// Need means the buffer does not yet hold a complete frame; the
	// caller must accumulate more bytes before decoding again.
	Need
	// Invalid means the buffer can never produce a valid frame at this
	// position; the connection must be closed.
	Invalid
)

// DecodeResult is the tagged outcome of TryDecodeOne. Exactly one of the
// following holds, selected by Outcome:
//
//	Frame:   Packet and Consumed are set.
//	Need:    NeedMore is set to the number of additional bytes required
//	         (while size_field itself hasn't arrived yet, the bytes still
//	         missing from size_field).
//	Invalid: Err is set, wrapping ErrInvalidFrame.
type DecodeResult struct {
	Outcome  Outcome
	Packet   Packet
	Consumed int
	NeedMore int
	Err      error
}

// TryDecodeOne consumes the longest prefix of buf that forms exactly one
// complete frame. It never reads past the declared frame end and never
// allocates for a frame whose declared size exceeds maxFrameSize.
func TryDecodeOne(buf []byte, maxFrameSize int) DecodeResult {
	if len(buf) < sizeFieldLen {
		return DecodeResult{Outcome: Need, NeedMore: sizeFieldLen - len(buf)}
	}

	sizeField := int32(binary.LittleEndian.Uint32(buf[0:sizeFieldLen]))

	if sizeField < 0 {
		return invalidResult("negative size_field: %d", sizeField)
	}

	// Integer-overflow guard: reject before computing sizeFieldLen+sizeField
	// if that sum could not fit back into an int32. This also catches the
	// maximal sentinel 0x7FFFFFFF.
	if sizeField > math.MaxInt32-sizeFieldLen {
		return invalidResult("size_field overflows frame length: %d", sizeField)
	}

	// Reject oversized declarations before any allocation or further
	// buffer indexing.
	if int(sizeField) > maxFrameSize-sizeFieldLen {
		return invalidResult("size_field %d exceeds max_frame_size %d", sizeField, maxFrameSize)
	}

	if sizeField < minSizeField {
		return invalidResult("size_field %d below minimum %d", sizeField, minSizeField)
	}

	frameLen := sizeFieldLen + int(sizeField)
	if len(buf) < frameLen {
		return DecodeResult{Outcome: Need, NeedMore: frameLen - len(buf)}
	}

	requestID := int32(binary.LittleEndian.Uint32(buf[sizeFieldLen : sizeFieldLen+requestIDLen]))
	typeCode := int32(binary.LittleEndian.Uint32(buf[sizeFieldLen+requestIDLen : sizeFieldLen+fixedHeaderLen]))

	bodyLen := int(sizeField) - minSizeField
	bodyStart := sizeFieldLen + fixedHeaderLen
	body := buf[bodyStart : bodyStart+bodyLen]

	termStart := bodyStart + bodyLen
	if buf[termStart] != 0 || buf[termStart+1] != 0 {
		return invalidResult("missing null terminators at offset %d", termStart)
	}

	if !utf8.Valid(body) {
		return invalidResult("body is not valid UTF-8")
	}

	bodyCopy := make([]byte, bodyLen)
	copy(bodyCopy, body)

	return DecodeResult{
		Outcome: Frame,
		Packet: Packet{
			RequestID: requestID,
			Type:      Type(typeCode),
			Body:      bodyCopy,
		},
		Consumed: frameLen,
	}
}

func invalidResult(format string, args ...any) DecodeResult {
	return DecodeResult{Outcome: Invalid, Err: fmt.Errorf("%w: %s", ErrInvalidFrame, fmt.Sprintf(format, args...))}
}

// Encode produces the wire form of p. It fails with ErrTooLarge if the
// resulting frame would exceed maxFrameSize; callers must not ship a
// partial or truncated frame in that case.
func Encode(p Packet, maxFrameSize int) ([]byte, error) {
	sizeField := minSizeField + len(p.Body)
	frameLen := sizeFieldLen + sizeField

	if frameLen > maxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrTooLarge, frameLen, maxFrameSize)
	}

	buf := make([]byte, frameLen)
	binary.LittleEndian.PutUint32(buf[0:sizeFieldLen], uint32(sizeField))
	binary.LittleEndian.PutUint32(buf[sizeFieldLen:sizeFieldLen+requestIDLen], uint32(p.RequestID))
	binary.LittleEndian.PutUint32(buf[sizeFieldLen+requestIDLen:sizeFieldLen+fixedHeaderLen], uint32(p.Type))
	copy(buf[sizeFieldLen+fixedHeaderLen:], p.Body)
	// Trailing two bytes are already zero from make().

	return buf, nil
}
