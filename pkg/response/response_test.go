package response

import (
	"bufio"
	"bytes"
	"testing"
)

func TestBuilderDefaultStatus(t *testing.T) {
	r := NewBuilder().Build()
	if r.Status() != "HTTP/1.1 200 OK" {
		t.Fatalf("Status() = %q", r.Status())
	}
}

func TestBuilderCodeDerivesMessage(t *testing.T) {
	r := NewBuilder().Code(404).Build()
	if r.Status() != "HTTP/1.1 404 Not Found" {
		t.Fatalf("Status() = %q", r.Status())
	}
}

func TestBuilderBodySetsContentLength(t *testing.T) {
	r := NewBuilder().BodyString("hello").Build()
	if v, ok := r.Headers().Get("Content-Length"); !ok || v != "5" {
		t.Fatalf("Content-Length = %q, %v", v, ok)
	}
	if r.BodyKind() != BodyKindBytes {
		t.Fatalf("BodyKind() = %v", r.BodyKind())
	}
}

func TestBuilderBodyVariantsAreMutuallyExclusive(t *testing.T) {
	r := NewBuilder().BodyString("first").StreamHandler(func(ReadWriteFlusher) error { return nil }).Build()
	if r.BodyKind() != BodyKindStream {
		t.Fatalf("BodyKind() = %v, want stream after overriding body", r.BodyKind())
	}
	if r.Body() != nil {
		t.Fatalf("Body() = %v, want nil once overridden", r.Body())
	}
	if _, ok := r.Headers().Get("Content-Length"); ok {
		t.Fatalf("Content-Length survived switching to stream handler")
	}
}

func TestChunkEncodeRoundTripShape(t *testing.T) {
	body := []byte("0123456789")
	encoded := ChunkEncode(body, 4)
	want := "4\r\n0123\r\n4\r\n4567\r\n2\r\n89\r\n0\r\n"
	if string(encoded) != want {
		t.Fatalf("ChunkEncode() = %q, want %q", encoded, want)
	}
}

func TestWriteHTTP1WritesStatusHeadersAndBody(t *testing.T) {
	resp := NewBuilder().Code(200).AddHeader("X-Test", "1").BodyString("ok").Build()

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	if err := WriteHTTP1(w, resp, nil, nil, nil); err != nil {
		t.Fatalf("WriteHTTP1() error: %v", err)
	}

	want := "HTTP/1.1 200 OK\r\nX-Test: 1\r\nContent-Length: 2\r\n\r\nok"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestWriteHTTP1ChunkedIncludesTrailers(t *testing.T) {
	resp := NewBuilder().
		ChunkedBody([]byte("abcd"), 2).
		Trailers(Headers{{Name: "X-Trailer", Value: "done"}}).
		Build()

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	if err := WriteHTTP1(w, resp, nil, nil, nil); err != nil {
		t.Fatalf("WriteHTTP1() error: %v", err)
	}

	if !bytes.Contains(out.Bytes(), []byte("Transfer-Encoding: chunked")) {
		t.Fatalf("missing Transfer-Encoding header: %q", out.String())
	}
	if !bytes.Contains(out.Bytes(), []byte("X-Trailer: done")) {
		t.Fatalf("missing trailer: %q", out.String())
	}
	if !bytes.HasSuffix(out.Bytes(), []byte("X-Trailer: done\r\n\r\n")) {
		t.Fatalf("trailer not terminated with blank line: %q", out.String())
	}
}

func TestWriteHTTP1StreamKindSkipsBody(t *testing.T) {
	resp := NewBuilder().StreamHandler(func(ReadWriteFlusher) error { return nil }).Build()

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	if err := WriteHTTP1(w, resp, nil, nil, nil); err != nil {
		t.Fatalf("WriteHTTP1() error: %v", err)
	}
	if !bytes.HasSuffix(out.Bytes(), []byte("\r\n\r\n")) {
		t.Fatalf("output should end at blank line with no body: %q", out.String())
	}
}

type fakeStreamSink struct {
	headers   []HeaderField
	data      [][]byte
	endStream bool
	trailers  []HeaderField
}

func (f *fakeStreamSink) WriteHeaders(fields []HeaderField, endStream bool) error {
	f.headers = fields
	f.endStream = endStream
	return nil
}

func (f *fakeStreamSink) WriteData(data []byte, endStream bool) error {
	f.data = append(f.data, data)
	f.endStream = endStream
	return nil
}

func (f *fakeStreamSink) WriteTrailers(fields []HeaderField) error {
	f.trailers = fields
	return nil
}

func TestWriteHTTP2BasicResponse(t *testing.T) {
	resp := NewBuilder().Code(200).BodyString("hi").Build()
	sink := &fakeStreamSink{}

	if err := WriteHTTP2(sink, resp, nil, nil); err != nil {
		t.Fatalf("WriteHTTP2() error: %v", err)
	}
	if sink.headers[0].Name != ":status" || sink.headers[0].Value != "200" {
		t.Fatalf("first header = %+v", sink.headers[0])
	}
	if len(sink.data) != 1 || string(sink.data[0]) != "hi" {
		t.Fatalf("data = %v", sink.data)
	}
	if !sink.endStream {
		t.Fatalf("endStream = false on final DATA frame")
	}
}

func TestWriteHTTP2TriggerSplitsData(t *testing.T) {
	resp := NewBuilder().BodyString("abcdefgh").Build()
	sink := &fakeStreamSink{}
	fired := 0

	if err := WriteHTTP2(sink, resp, nil, func() { fired++ }); err != nil {
		t.Fatalf("WriteHTTP2() error: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if len(sink.data) != 2 {
		t.Fatalf("data frames = %d, want 2 (split at trigger)", len(sink.data))
	}
}
