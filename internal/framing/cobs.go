package framing

import "errors"

var (
	ErrCOBSEmpty       = errors.New("cobs: empty frame")
	ErrCOBSZeroInBlock = errors.New("cobs: unexpected zero byte inside frame")
	ErrCOBSTruncated   = errors.New("cobs: frame truncated")
)

// EncodeCOBS stuffs src so that the result contains no zero bytes. The 0x00
// delimiter is not appended; see EncodeFrame.
func EncodeCOBS(src []byte) []byte {
	out := make([]byte, 1, len(src)+len(src)/254+2)
	codeIdx := 0
	code := byte(1)
	for _, b := range src {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
			continue
		}
		out = append(out, b)
		code++
		if code == 0xFF {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
		}
	}
	out[codeIdx] = code
	return out
}

// EncodeFrame returns the COBS encoding of payload followed by the 0x00
// delimiter, ready to be written to the wire.
func EncodeFrame(payload []byte) []byte {
	return append(EncodeCOBS(payload), 0x00)
}

// DecodeCOBS reverses EncodeCOBS. The span may include its trailing 0x00
// delimiter; any other zero byte makes the span malformed.
func DecodeCOBS(span []byte) ([]byte, error) {
	if n := len(span); n > 0 && span[n-1] == 0x00 {
		span = span[:n-1]
	}
	if len(span) == 0 {
		return nil, ErrCOBSEmpty
	}

	out := make([]byte, 0, len(span))
	for i := 0; i < len(span); {
		code := span[i]
		if code == 0 {
			return nil, ErrCOBSZeroInBlock
		}
		i++

		end := i + int(code) - 1
		if end > len(span) {
			return nil, ErrCOBSTruncated
		}
		for _, b := range span[i:end] {
			if b == 0 {
				return nil, ErrCOBSZeroInBlock
			}
		}
		out = append(out, span[i:end]...)
		i = end

		if code != 0xFF && i < len(span) {
			out = append(out, 0x00)
		}
	}
	return out, nil
}
