package response

import (
	"bufio"
	"fmt"
	"time"

	"github.com/square/okhttp-sub007/pkg/buffer"
)

// Sleeper abstracts time.Sleep so tests can inject a fast-forward clock;
// nil means time.Sleep.
type Sleeper func(time.Duration)

func sleep(s Sleeper, d time.Duration) {
	if d <= 0 {
		return
	}
	if s != nil {
		s(d)
		return
	}
	time.Sleep(d)
}

// WriteHTTP1 serializes resp onto w (typically a *bufio.Writer over the raw
// socket), following §4.7's phase order: headersDelay, status line +
// headers, body (with bodyDelay and the throttle/trigger sink chain),
// trailersDelay + trailers. Stream-handler and WebSocket responses stop after
// the headers; the caller performs the hand-off.
//
// closed signals socket closure to interrupt a throttle sleep.
// onResponseBody, if resp carries one, fires via triggerFired once the body
// write crosses the half-way mark.
func WriteHTTP1(w *bufio.Writer, resp *MockResponse, closed <-chan struct{}, sleeper Sleeper, triggerFired func()) error {
	sleep(sleeper, resp.headersDelay)

	if _, err := w.WriteString(resp.status + "\r\n"); err != nil {
		return err
	}
	for _, h := range resp.headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	switch resp.bodyKind {
	case BodyKindStream, BodyKindWebSocket, BodyKindNone:
		return nil
	}

	sleep(sleeper, resp.bodyDelay)

	body := resp.body
	if resp.bodyKind == BodyKindChunked {
		body = resp.chunkedBody
	}

	sink := buffer.Sink(buffer.NewWriterSink(w, w.Flush, nil))
	if bytesPerPeriod, period := resp.Throttle(); period > 0 {
		sink = buffer.NewThrottledSink(sink, int(bytesPerPeriod), period, closed)
	}
	if triggerFired != nil {
		triggerAt := int64(len(body)) / 2
		sink = buffer.NewTriggerSink(sink, triggerAt, triggerFired)
	}

	if _, err := sink.Write(body); err != nil {
		return err
	}
	if err := sink.Flush(); err != nil {
		return err
	}

	sleep(sleeper, resp.trailersDelay)

	if resp.bodyKind == BodyKindChunked {
		for _, h := range resp.trailers {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.Name, h.Value); err != nil {
				return err
			}
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
		return w.Flush()
	}
	return nil
}

// StreamSink is the HTTP/2 side of the same write sequence: one HEADERS
// frame (plus CONTINUATIONs, handled internally by the implementation) and
// zero or more DATA frames, followed by trailers as a second HEADERS frame.
// pkg/mockserver's h2StreamSink implements this over a pkg/http2.Stream, so
// pkg/response never imports pkg/http2.
type StreamSink interface {
	WriteHeaders(fields []HeaderField, endStream bool) error
	WriteData(data []byte, endStream bool) error
	WriteTrailers(fields []HeaderField) error
}

// WriteHTTP2 drives a StreamSink through the same phase order as WriteHTTP1.
func WriteHTTP2(stream StreamSink, resp *MockResponse, sleeper Sleeper, triggerFired func()) error {
	sleep(sleeper, resp.headersDelay)

	statusFields := []HeaderField{{Name: ":status", Value: fmt.Sprintf("%d", resp.code)}}
	statusFields = append(statusFields, resp.headers...)

	switch resp.bodyKind {
	case BodyKindNone:
		return stream.WriteHeaders(statusFields, true)
	case BodyKindStream, BodyKindWebSocket:
		return stream.WriteHeaders(statusFields, false)
	}

	hasTrailers := len(resp.trailers) > 0
	if err := stream.WriteHeaders(statusFields, false); err != nil {
		return err
	}

	sleep(sleeper, resp.bodyDelay)

	// HTTP/2 has no wire chunking: chunked responses send resp.body (the
	// logical bytes ChunkedBody was built from) as plain DATA, with
	// completion signaled by trailers or END_STREAM instead of a "0" chunk.
	body := resp.body

	endStream := !hasTrailers
	if triggerFired != nil {
		if err := writeDataWithTrigger(stream, body, endStream, triggerFired); err != nil {
			return err
		}
	} else if err := stream.WriteData(body, endStream); err != nil {
		return err
	}

	sleep(sleeper, resp.trailersDelay)

	if hasTrailers {
		return stream.WriteTrailers(resp.trailers)
	}
	return nil
}

// writeDataWithTrigger splits body at its half-way mark (offset 0 if body is
// empty), firing triggerFired exactly once between the two halves.
func writeDataWithTrigger(stream StreamSink, body []byte, endStream bool, triggerFired func()) error {
	mid := len(body) / 2
	if mid == 0 {
		triggerFired()
		return stream.WriteData(body, endStream)
	}
	if err := stream.WriteData(body[:mid], false); err != nil {
		return err
	}
	triggerFired()
	return stream.WriteData(body[mid:], endStream)
}

