package frame

import (
	"bytes"
	"io"
	"testing"

	"golang.org/x/net/http2"
)

// pipe is an io.ReadWriter over two independent buffers, enough for a single
// writer/reader pair talking through one Conn each.
type pipe struct {
	r *bytes.Buffer
	w *bytes.Buffer
}

func (p *pipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipe) Write(b []byte) (int, error) { return p.w.Write(b) }

func newPipePair() (a, b io.ReadWriter) {
	buf1 := &bytes.Buffer{}
	buf2 := &bytes.Buffer{}
	return &pipe{r: buf1, w: buf2}, &pipe{r: buf2, w: buf1}
}

func TestWriteReadDataFrame(t *testing.T) {
	side1, side2 := newPipePair()
	writer := NewConn(side1, 0)
	reader := NewConn(side2, 0)

	if err := writer.WriteData(1, true, []byte("payload")); err != nil {
		t.Fatalf("WriteData() error: %v", err)
	}

	f, err := reader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	df, ok := f.(*http2.DataFrame)
	if !ok {
		t.Fatalf("ReadFrame() = %T, want *http2.DataFrame", f)
	}
	if string(df.Data()) != "payload" || !df.StreamEnded() {
		t.Fatalf("DataFrame = %q, endStream=%v", df.Data(), df.StreamEnded())
	}
}

func TestWriteReadSettingsAndAck(t *testing.T) {
	side1, side2 := newPipePair()
	writer := NewConn(side1, 0)
	reader := NewConn(side2, 0)

	if err := writer.WriteSettings(Setting{ID: SettingInitialWindowSize, Val: 65535}); err != nil {
		t.Fatalf("WriteSettings() error: %v", err)
	}
	f, err := reader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	sf, ok := f.(*http2.SettingsFrame)
	if !ok {
		t.Fatalf("ReadFrame() = %T, want *http2.SettingsFrame", f)
	}
	if v, ok := sf.Value(SettingInitialWindowSize); !ok || v != 65535 {
		t.Fatalf("SettingsFrame value = %d, ok=%v", v, ok)
	}

	if err := writer.WriteSettingsAck(); err != nil {
		t.Fatalf("WriteSettingsAck() error: %v", err)
	}
	f, err = reader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	ackFrame, ok := f.(*http2.SettingsFrame)
	if !ok || !ackFrame.IsAck() {
		t.Fatalf("ReadFrame() = %T, want ack SettingsFrame", f)
	}
}

func TestWriteReadHeadersFrame(t *testing.T) {
	side1, side2 := newPipePair()
	writer := NewConn(side1, 0)
	reader := NewConn(side2, 0)

	block := []byte{0x82, 0x86, 0x84} // arbitrary bytes; framer doesn't decode HPACK itself
	if err := writer.WriteHeaders(3, false, true, block, nil); err != nil {
		t.Fatalf("WriteHeaders() error: %v", err)
	}

	f, err := reader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	hf, ok := f.(*http2.HeadersFrame)
	if !ok {
		t.Fatalf("ReadFrame() = %T, want *http2.HeadersFrame", f)
	}
	if !bytes.Equal(hf.HeaderBlockFragment(), block) {
		t.Fatalf("HeaderBlockFragment() = %x, want %x", hf.HeaderBlockFragment(), block)
	}
	if hf.StreamEnded() || !hf.HeadersEnded() {
		t.Fatalf("StreamEnded=%v HeadersEnded=%v", hf.StreamEnded(), hf.HeadersEnded())
	}
}

func TestWriteReadGoAway(t *testing.T) {
	side1, side2 := newPipePair()
	writer := NewConn(side1, 0)
	reader := NewConn(side2, 0)

	if err := writer.WriteGoAway(7, ErrCodeNo, []byte("bye")); err != nil {
		t.Fatalf("WriteGoAway() error: %v", err)
	}
	f, err := reader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	gf, ok := f.(*http2.GoAwayFrame)
	if !ok {
		t.Fatalf("ReadFrame() = %T, want *http2.GoAwayFrame", f)
	}
	if gf.LastStreamID != 7 || gf.ErrCode != ErrCodeNo || string(gf.DebugData()) != "bye" {
		t.Fatalf("GoAwayFrame = %+v", gf)
	}
}
