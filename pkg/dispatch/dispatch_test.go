package dispatch

import (
	"testing"

	"github.com/square/okhttp-sub007/pkg/record"
	"github.com/square/okhttp-sub007/pkg/response"
)

func TestQueueDispatcherFIFO(t *testing.T) {
	d := NewQueueDispatcher()
	first := response.NewBuilder().Code(200).Build()
	second := response.NewBuilder().Code(201).Build()
	d.Enqueue(first)
	d.Enqueue(second)

	if d.Peek() != first {
		t.Fatalf("Peek() before Dispatch() should return head without consuming")
	}

	got, err := d.Dispatch(&record.Request{})
	if err != nil || got != first {
		t.Fatalf("Dispatch() = %v, %v, want %v", got, err, first)
	}

	got, _ = d.Dispatch(&record.Request{})
	if got != second {
		t.Fatalf("Dispatch() = %v, want %v", got, second)
	}
}

func TestQueueDispatcherEmptyReturns503(t *testing.T) {
	d := NewQueueDispatcher()
	got, err := d.Dispatch(&record.Request{})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if got.Code() != 503 {
		t.Fatalf("Dispatch() on empty queue = %d, want 503", got.Code())
	}
}

func TestQueueDispatcherFallback(t *testing.T) {
	d := NewQueueDispatcher()
	fallback := response.NewBuilder().Code(418).Build()
	d.SetFallback(fallback)

	got, _ := d.Dispatch(&record.Request{})
	if got != fallback {
		t.Fatalf("Dispatch() with empty queue and fallback = %v, want %v", got, fallback)
	}
	if d.Peek() != fallback {
		t.Fatalf("Peek() with empty queue and fallback = %v, want %v", d.Peek(), fallback)
	}
}

func TestFuncDispatcherPeekIsKeepOpen(t *testing.T) {
	d := NewFuncDispatcher(func(req *record.Request) (*response.MockResponse, error) {
		return response.NewBuilder().Build(), nil
	})
	if d.Peek() != KeepOpenResponse() {
		t.Fatalf("Peek() = %v, want the keep-open sentinel", d.Peek())
	}
}
