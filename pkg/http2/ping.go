package http2

import (
	"sync/atomic"
	"time"

	xhttp2 "golang.org/x/net/http2"

	"github.com/square/okhttp-sub007/pkg/errors"
)

// Two distinct ping payloads are in play: an "await" ping, whose matching
// pong releases whichever waiter is oldest in the queue (used by callers
// that want to block until all previously-queued frames have reached the
// peer), and a "degraded" ping sent periodically by pingLoop purely to probe
// liveness. Each kind has its own 8-byte payload, and since RFC 7540 requires
// the peer to echo the payload verbatim, handlePing tells the pongs apart by
// comparing payloads.
var awaitPingPayload = [8]byte{'o', 'k', 'h', 't', 't', 'p', 'a', 'w'}
var degradedPingPayload = [8]byte{'o', 'k', 'h', 't', 't', 'p', 'd', 'g'}

// handlePing answers non-ACK pings immediately and, for ACKs, wakes the
// oldest outstanding await-waiter (if the payload matches) or signals
// pingLoop that the degraded probe was answered (if it matches that probe).
// An ACK matching neither is an unsolicited pong and is silently dropped.
func (c *Connection) handlePing(f *xhttp2.PingFrame) error {
	if !f.IsAck() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.conn.WritePing(true, f.Data)
	}

	if f.Data == awaitPingPayload {
		c.pingMu.Lock()
		var waiter chan struct{}
		select {
		case waiter = <-c.awaitPings:
		default:
		}
		c.pingMu.Unlock()
		if waiter != nil {
			close(waiter)
		}
		return nil
	}

	if f.Data == degradedPingPayload {
		select {
		case c.degradedPongCh <- struct{}{}:
		default:
		}
		return nil
	}

	return nil
}

// AwaitPongs blocks until a PING sent now has been echoed back by the peer,
// used to flush previously-queued writes before proceeding (e.g. before
// closing a stream). It returns early with an error if the connection tears
// down first.
func (c *Connection) AwaitPongs() error {
	waiter := make(chan struct{})
	c.pingMu.Lock()
	c.awaitPings <- waiter
	c.pingMu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WritePing(false, awaitPingPayload)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-waiter:
		return nil
	case <-c.done:
		return errors.NewIOError("await-pong", nil)
	}
}

// pingLoop periodically probes liveness: it sends a degraded-ping and, if no
// matching pong arrives within DegradedPongTimeout, marks the connection
// unhealthy. The mark is permanent; later pongs do not restore health.
func (c *Connection) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			// drain any stale pong from a previous round
			select {
			case <-c.degradedPongCh:
			default:
			}

			c.writeMu.Lock()
			err := c.conn.WritePing(false, degradedPingPayload)
			c.writeMu.Unlock()
			if err != nil {
				return
			}

			timeout := time.NewTimer(c.config.DegradedPongTimeout)
			select {
			case <-c.done:
				timeout.Stop()
				return
			case <-c.degradedPongCh:
				timeout.Stop()
			case <-timeout.C:
				atomic.StoreInt32(&c.healthy, 0)
			}
		}
	}
}
