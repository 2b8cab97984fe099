package buffer

// TriggerSink wraps a delegate Sink and invokes OnTrigger exactly once, after
// TriggerByteCount bytes have been written through it, per spec §4.1. Bytes
// written after the trigger fires are silently discarded rather than
// forwarded, so a scripted "drop the rest of the body" effect can be built by
// pairing a TriggerSink with a socket-closing callback.
//
// If TriggerByteCount is -1 ("unknown expected length"), the trigger fires
// immediately, before any bytes are written.
type TriggerSink struct {
	delegate         Sink
	triggerByteCount int64
	onTrigger        func()

	written int64
	fired   bool
}

// NewTriggerSink builds a TriggerSink. onTrigger may be nil, in which case
// the sink just stops forwarding bytes past triggerByteCount.
func NewTriggerSink(delegate Sink, triggerByteCount int64, onTrigger func()) *TriggerSink {
	t := &TriggerSink{
		delegate:         delegate,
		triggerByteCount: triggerByteCount,
		onTrigger:        onTrigger,
	}
	if triggerByteCount < 0 {
		t.fire()
	}
	return t
}

func (t *TriggerSink) fire() {
	if t.fired {
		return
	}
	t.fired = true
	if t.onTrigger != nil {
		t.onTrigger()
	}
}

func (t *TriggerSink) Write(p []byte) (int, error) {
	if t.fired {
		return len(p), nil
	}

	remaining := t.triggerByteCount - t.written
	if remaining <= 0 {
		t.fire()
		return len(p), nil
	}

	forward := p
	if int64(len(forward)) > remaining {
		forward = forward[:remaining]
	}

	n, err := t.delegate.Write(forward)
	t.written += int64(n)
	if err != nil {
		return n, err
	}

	if t.written >= t.triggerByteCount {
		t.fire()
	}

	return len(p), nil
}

func (t *TriggerSink) Flush() error { return t.delegate.Flush() }
func (t *TriggerSink) Close() error { return t.delegate.Close() }
