// Package hpack adapts golang.org/x/net/http2/hpack's encoder and decoder
// into the ordered, connection-scoped header codec the server needs: one
// Writer and one Reader per HTTP/2 connection, each carrying its own dynamic
// table exactly like a real peer would. Huffman coding, integer/string
// primitive encoding, and dynamic table eviction are left entirely to the
// wrapped library; this package only adds the server-specific policy hpack
// itself is silent on — a ceiling on SETTINGS_HEADER_TABLE_SIZE updates and
// rejecting uppercase header names on read, per RFC 7540 §8.1.2.
package hpack

import (
	"bytes"
	"strings"

	"golang.org/x/net/http2/hpack"

	"github.com/square/okhttp-sub007/pkg/constants"
	"github.com/square/okhttp-sub007/pkg/errors"
)

// HeaderField is a single name/value pair, order-preserving and
// duplicate-preserving — unlike a map, it survives a round trip through a
// client that sends "set-cookie" twice.
type HeaderField struct {
	Name  string
	Value string
}

// Writer encodes HeaderField lists into HPACK block fragments, maintaining
// the encoder-side dynamic table for one connection's lifetime.
type Writer struct {
	buf     bytes.Buffer
	encoder *hpack.Encoder
}

// NewWriter creates a Writer with the given initial dynamic table size
// (SETTINGS_HEADER_TABLE_SIZE as advertised by this connection).
func NewWriter(maxDynamicTableSize uint32) *Writer {
	w := &Writer{}
	w.encoder = hpack.NewEncoder(&w.buf)
	w.encoder.SetMaxDynamicTableSize(maxDynamicTableSize)
	return w
}

// SetMaxDynamicTableSize updates the encoder's table size ceiling, clamped to
// constants.MaxFrameSizeCeiling (2^24-1) so a scripted SETTINGS frame can't
// be used to force unbounded encoder memory growth. The wrapped encoder
// further caps the value at its own limit (4096 bytes by default).
func (w *Writer) SetMaxDynamicTableSize(size uint32) {
	if size > constants.MaxFrameSizeCeiling {
		size = constants.MaxFrameSizeCeiling
	}
	w.encoder.SetMaxDynamicTableSize(size)
}

// Encode serializes fields into a single HPACK block. The returned slice is
// only valid until the next call to Encode. Names are lower-cased before
// emit (RFC 7540 §8.1.2: uppercase on the wire is a PROTOCOL_ERROR), and
// every pseudo-header except :authority is marked Sensitive so the wrapped
// encoder never incrementally indexes it — :authority is the only
// pseudo-header RFC 7541 §B expects to repeat usefully across a connection.
func (w *Writer) Encode(fields []HeaderField) ([]byte, error) {
	w.buf.Reset()
	for _, f := range fields {
		name := strings.ToLower(f.Name)
		sensitive := strings.HasPrefix(name, ":") && name != ":authority"
		field := hpack.HeaderField{Name: name, Value: f.Value, Sensitive: sensitive}
		if err := w.encoder.WriteField(field); err != nil {
			return nil, errors.NewProtocolError("hpack-encode", "failed to write header field", err)
		}
	}
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	return out, nil
}

// Reader decodes HPACK block fragments into HeaderField lists, maintaining
// the decoder-side dynamic table for one connection's lifetime.
type Reader struct {
	decoder *hpack.Decoder
	fields  []HeaderField
}

// NewReader creates a Reader with the given initial dynamic table size.
func NewReader(maxDynamicTableSize uint32) *Reader {
	r := &Reader{}
	r.decoder = hpack.NewDecoder(maxDynamicTableSize, nil)
	r.decoder.SetEmitFunc(func(f hpack.HeaderField) {
		r.fields = append(r.fields, HeaderField{Name: f.Name, Value: f.Value})
	})
	return r
}

// SetMaxDynamicTableSize updates the decoder's table size ceiling to track a
// peer's SETTINGS_HEADER_TABLE_SIZE change.
func (r *Reader) SetMaxDynamicTableSize(size uint32) {
	r.decoder.SetMaxDynamicTableSize(size)
}

// Decode parses one HPACK block fragment (a full HEADERS+CONTINUATION
// sequence concatenated by the caller) into an ordered HeaderField list.
// Pseudo-header fields are returned alongside regular fields in wire order;
// the caller is responsible for pseudo/regular ordering validation.
func (r *Reader) Decode(block []byte) ([]HeaderField, error) {
	r.fields = r.fields[:0]
	if _, err := r.decoder.Write(block); err != nil {
		return nil, errors.NewProtocolError("hpack-decode", "malformed header block", err)
	}
	if err := r.decoder.Close(); err != nil {
		return nil, errors.NewProtocolError("hpack-decode", "incomplete header block", err)
	}
	for _, f := range r.fields {
		if f.Name == "" {
			return nil, errors.NewProtocolError("hpack-decode", "empty header name", nil)
		}
		if strings.ToLower(f.Name) != f.Name {
			return nil, errors.NewProtocolError("hpack-decode", "uppercase header name: "+f.Name, nil)
		}
	}
	out := make([]HeaderField, len(r.fields))
	copy(out, r.fields)
	return out, nil
}
