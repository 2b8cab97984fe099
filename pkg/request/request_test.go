package request

import (
	"bufio"
	"strings"
	"testing"

	"github.com/square/okhttp-sub007/pkg/record"
)

func TestReadLineParsesRequestLine(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("GET /foo HTTP/1.1\r\nHost: x\r\n\r\n"))
	line, ok, err := ReadLine(br)
	if err != nil || !ok {
		t.Fatalf("ReadLine() = %+v, %v, %v", line, ok, err)
	}
	if line.Method != "GET" || line.Target != "/foo" || line.Version != "HTTP/1.1" {
		t.Fatalf("line = %+v", line)
	}
}

func TestReadLineCleanEOF(t *testing.T) {
	br := bufio.NewReader(strings.NewReader(""))
	_, ok, err := ReadLine(br)
	if err != nil || ok {
		t.Fatalf("ReadLine() on empty stream = %v, %v, want ok=false err=nil", ok, err)
	}
}

func TestReadLineMalformed(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("justonetoken\r\n"))
	_, _, err := ReadLine(br)
	if err == nil {
		t.Fatalf("ReadLine() on malformed request line succeeded, want error")
	}
}

func TestReadHeaders(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("Host: example.com\r\nX-Foo:  bar\r\n\r\n"))
	headers, err := ReadHeaders(br)
	if err != nil {
		t.Fatalf("ReadHeaders() error: %v", err)
	}
	if v, _ := headers.Get("Host"); v != "example.com" {
		t.Fatalf("Host = %q", v)
	}
	if v, _ := headers.Get("X-Foo"); v != " bar" {
		t.Fatalf("X-Foo = %q, want single leading space stripped only once", v)
	}
}

func TestContentLengthAndChunked(t *testing.T) {
	h := record.Headers{{Name: "Content-Length", Value: "42"}}
	n, ok := ContentLength(h)
	if !ok || n != 42 {
		t.Fatalf("ContentLength() = %d, %v", n, ok)
	}

	h2 := record.Headers{{Name: "Transfer-Encoding", Value: "chunked"}}
	if !IsChunked(h2) {
		t.Fatalf("IsChunked() = false, want true")
	}
}

func TestPermitsBody(t *testing.T) {
	if PermitsBody("GET") || PermitsBody("HEAD") {
		t.Fatalf("GET/HEAD should not permit a body")
	}
	if !PermitsBody("POST") {
		t.Fatalf("POST should permit a body")
	}
}

func TestTruncatingBufferTruncatesButCountsAll(t *testing.T) {
	tb := NewTruncatingBuffer(4)
	n, err := tb.Write([]byte("abcdefgh"))
	if err != nil || n != 8 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if string(tb.Bytes()) != "abcd" {
		t.Fatalf("Bytes() = %q, want truncated to 4", tb.Bytes())
	}
	if tb.Received != 8 {
		t.Fatalf("Received = %d, want 8", tb.Received)
	}
}

func TestReadContentLength(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("hello world"))
	tb := NewTruncatingBuffer(5)
	result, err := ReadContentLength(br, 11, tb, tb)
	if err != nil {
		t.Fatalf("ReadContentLength() error: %v", err)
	}
	if string(result.Captured) != "hello" {
		t.Fatalf("Captured = %q", result.Captured)
	}
	if result.BodySize != 11 {
		t.Fatalf("BodySize = %d, want 11", result.BodySize)
	}
}

func TestReadChunked(t *testing.T) {
	raw := "4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	br := bufio.NewReader(strings.NewReader(raw))
	tb := NewTruncatingBuffer(100)
	result, err := ReadChunked(br, tb, tb)
	if err != nil {
		t.Fatalf("ReadChunked() error: %v", err)
	}
	if string(result.Captured) != "Wikipedia" {
		t.Fatalf("Captured = %q", result.Captured)
	}
	if len(result.ChunkSizes) != 2 || result.ChunkSizes[0] != 4 || result.ChunkSizes[1] != 5 {
		t.Fatalf("ChunkSizes = %v", result.ChunkSizes)
	}
}

func TestReadChunkedInvalidSize(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("zzz\r\n"))
	tb := NewTruncatingBuffer(100)
	if _, err := ReadChunked(br, tb, tb); err == nil {
		t.Fatalf("ReadChunked() with invalid hex size succeeded, want error")
	}
}
