// Package request implements the HTTP/1 request-line and header parser and
// the truncating body reader, per spec §4.5.
package request

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/square/okhttp-sub007/pkg/buffer"
	"github.com/square/okhttp-sub007/pkg/constants"
	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/record"
)

// Line is the parsed request line: method, target (origin/absolute/
// authority-form, or "*"), and version.
type Line struct {
	Method  string
	Target  string
	Version string
}

// ReadLine reads and parses the request line. An immediate EOF (no bytes at
// all) is reported via the ok=false, err=nil return, meaning "the connection
// went away between exchanges" rather than a malformed request.
func ReadLine(br *bufio.Reader) (line Line, ok bool, err error) {
	text, err := buffer.ReadLineStrict(br)
	if err != nil {
		if err == io.EOF {
			// a clean EOF before any bytes is a normal connection-closed signal
			return Line{}, false, nil
		}
		return Line{}, false, err
	}
	if text == "" {
		return Line{}, false, nil
	}

	parts := strings.SplitN(text, " ", 3)
	if len(parts) != 3 {
		return Line{}, false, errors.NewProtocolError("read-request-line", "malformed request line: "+text, nil)
	}
	return Line{Method: parts[0], Target: parts[1], Version: parts[2]}, true, nil
}

// ReadHeaders reads CRLF-terminated "Name: Value" pairs until a blank line.
// Values are preserved byte-for-byte (addHeaderLenient in spec terms): no
// trimming beyond the single leading space RFC 7230 requires producers to
// emit, no charset validation.
func ReadHeaders(br *bufio.Reader) (record.Headers, error) {
	var headers record.Headers
	for {
		line, err := buffer.ReadLineStrict(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return headers, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, errors.NewProtocolError("read-headers", "malformed header line: "+line, nil)
		}
		name := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")
		headers = append(headers, record.HeaderField{Name: name, Value: value})
	}
}

// ContentLength returns the first Content-Length header's parsed value, and
// whether one was present.
func ContentLength(headers record.Headers) (int64, bool) {
	v, ok := headers.Get("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// IsChunked reports whether Transfer-Encoding: chunked is present.
func IsChunked(headers record.Headers) bool {
	v, ok := headers.Get("Transfer-Encoding")
	return ok && strings.EqualFold(strings.TrimSpace(v), "chunked")
}

// PermitsBody reports whether method conventionally carries a request body;
// GET/HEAD do not, per spec §4.5 step 4.
func PermitsBody(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return false
	default:
		return true
	}
}

// TruncatingBuffer accepts writes, keeping at most Limit bytes verbatim while
// still counting every byte written in Received. This is how a recorded
// request's BodySize can exceed len(Body).
type TruncatingBuffer struct {
	Limit    int64
	stored   []byte
	Received int64
}

// NewTruncatingBuffer creates a TruncatingBuffer with the given capture
// limit. A limit <= 0 uses constants.DefaultBodyLimit.
func NewTruncatingBuffer(limit int64) *TruncatingBuffer {
	if limit <= 0 {
		limit = constants.DefaultBodyLimit
	}
	return &TruncatingBuffer{Limit: limit}
}

// Write implements io.Writer, storing up to Limit bytes and discarding the rest.
func (t *TruncatingBuffer) Write(p []byte) (int, error) {
	t.Received += int64(len(p))
	if remaining := t.Limit - int64(len(t.stored)); remaining > 0 {
		n := remaining
		if n > int64(len(p)) {
			n = int64(len(p))
		}
		t.stored = append(t.stored, p[:n]...)
	}
	return len(p), nil
}

// Bytes returns the stored (possibly truncated) prefix.
func (t *TruncatingBuffer) Bytes() []byte { return t.stored }
