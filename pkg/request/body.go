package request

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/square/okhttp-sub007/pkg/buffer"
	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/record"
)

// BodyResult carries the outcome of reading a request body: the (possibly
// truncated) captured bytes, the total bytes actually received, and the
// per-chunk sizes if the body arrived chunked.
type BodyResult struct {
	Captured   []byte
	BodySize   int64
	ChunkSizes []int // nil unless chunked

	// Trailers holds the trailer fields sent after the terminating zero
	// chunk, if the body arrived chunked and carried any.
	Trailers record.Headers
}

// ReadContentLength copies n bytes from br into sink (a TruncatingBuffer
// chained behind any throttle/trigger sinks), per spec §4.5 step 3.
func ReadContentLength(br *bufio.Reader, n int64, sink io.Writer, tb *TruncatingBuffer) (BodyResult, error) {
	if _, err := io.CopyN(sink, br, n); err != nil {
		return BodyResult{}, errors.NewIOError("read-request-body", err)
	}
	return BodyResult{Captured: tb.Bytes(), BodySize: tb.Received}, nil
}

// ReadChunked loops "hex-size CRLF data CRLF" until a zero-sized chunk,
// copying each chunk's data through sink and recording its size, per
// RFC 7230 §4.1 / spec §4.5 step 3.
func ReadChunked(br *bufio.Reader, sink io.Writer, tb *TruncatingBuffer) (BodyResult, error) {
	sizes := []int{}
	for {
		sizeLine, err := buffer.ReadLineStrict(br)
		if err != nil {
			return BodyResult{}, errors.NewProtocolError("read-chunk-size", "failed to read chunk size", err)
		}
		size, err := parseChunkSizeLine(sizeLine)
		if err != nil {
			return BodyResult{}, err
		}
		if size == 0 {
			break
		}
		if _, err := io.CopyN(sink, br, int64(size)); err != nil {
			return BodyResult{}, errors.NewIOError("read-chunk-data", err)
		}
		if _, err := buffer.ReadLineStrict(br); err != nil {
			return BodyResult{}, errors.NewProtocolError("read-chunk-terminator", "failed to read chunk CRLF", err)
		}
		sizes = append(sizes, size)
	}

	trailers, err := readChunkTrailers(br)
	if err != nil {
		return BodyResult{}, err
	}

	return BodyResult{Captured: tb.Bytes(), BodySize: tb.Received, ChunkSizes: sizes, Trailers: trailers}, nil
}

// readChunkTrailers reads the trailer section following the terminating
// zero-size chunk: zero or more "Name: Value" lines up to the final blank
// line, per RFC 7230 §4.1.2.
func readChunkTrailers(br *bufio.Reader) (record.Headers, error) {
	var trailers record.Headers
	for {
		line, err := buffer.ReadLineStrict(br)
		if err != nil {
			return nil, errors.NewProtocolError("read-chunk-trailer", "failed to read trailer line", err)
		}
		if line == "" {
			return trailers, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, errors.NewProtocolError("read-chunk-trailer", "malformed trailer line: "+line, nil)
		}
		name := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")
		trailers = append(trailers, record.HeaderField{Name: name, Value: value})
	}
}

// parseChunkSizeLine parses the hex chunk-size, ignoring any chunk
// extensions after a ';'.
func parseChunkSizeLine(line string) (int, error) {
	for i, c := range line {
		if c == ';' {
			line = line[:i]
			break
		}
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, errors.NewProtocolError("parse-chunk-size", "invalid chunk size: "+line, err)
	}
	return int(n), nil
}
