// Package netstring is the TCP binding of rpcserve. Every message, in both
// directions, is framed as a netstring: the decimal payload length, a colon,
// the payload and a trailing comma ("12:hello world!,").
package netstring

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// DefaultMaxLength bounds the payload of a single frame.
const DefaultMaxLength = 1 << 20

var (
	ErrTooLong = errors.New("netstring: frame exceeds maximum length")
	ErrFormat  = errors.New("netstring: malformed frame")
)

// maxDigits is enough for any length that fits in an int on 64-bit platforms.
const maxDigits = 19

// Append appends the netstring encoding of payload to dst.
func Append(dst, payload []byte) []byte {
	dst = strconv.AppendInt(dst, int64(len(payload)), 10)
	dst = append(dst, ':')
	dst = append(dst, payload...)
	return append(dst, ',')
}

// WriteNetstring writes payload to w as a single frame in one Write call.
func WriteNetstring(w io.Writer, payload []byte) error {
	_, err := w.Write(Append(nil, payload))
	return err
}

// Reader reads consecutive frames from a byte stream.
type Reader struct {
	r *bufio.Reader
	// MaxLength is the largest payload accepted. Zero means DefaultMaxLength.
	MaxLength int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, maxLength int) *Reader {
	return &Reader{r: bufio.NewReader(r), MaxLength: maxLength}
}

// ReadNetstring returns the next payload. It returns io.EOF only when the
// stream ends cleanly between frames.
func (r *Reader) ReadNetstring() ([]byte, error) {
	max := r.MaxLength
	if max <= 0 {
		max = DefaultMaxLength
	}

	n, digits := 0, 0
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && digits > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if c == ':' {
			break
		}
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: unexpected %q in length", ErrFormat, c)
		}
		if digits > 0 && n == 0 {
			return nil, fmt.Errorf("%w: leading zero in length", ErrFormat)
		}
		digits++
		if digits > maxDigits {
			return nil, ErrTooLong
		}
		n = n*10 + int(c-'0')
		if n > max {
			return nil, fmt.Errorf("%w: %d > %d", ErrTooLong, n, max)
		}
	}
	if digits == 0 {
		return nil, fmt.Errorf("%w: empty length", ErrFormat)
	}

	buf := make([]byte, n+1)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if buf[n] != ',' {
		return nil, fmt.Errorf("%w: missing trailing comma", ErrFormat)
	}
	return buf[:n], nil
}
