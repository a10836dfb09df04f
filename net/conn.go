package net

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/engine"
)

// maxChunkSize bounds a single signal payload to stay well under a UDP
// datagram's practical MTU, leaving headroom for the JSON frame envelope
// and hop metadata a relayed signal accumulates in transit.
const maxChunkSize = 1200

// OverlayConn implements net.Conn over the DHT's overlay signal relay. It
// provides a stream-like interface over the engine's message-based,
// best-effort signal delivery.
type OverlayConn struct {
	eng        *engine.Engine
	remoteID   dht.NodeID
	localAddr  *NodeAddr
	remoteAddr *NodeAddr

	closed bool
	mu     sync.RWMutex

	// Read buffer for incoming payloads delivered by the signal router.
	readBuffer *bytes.Buffer
	readMu     sync.Mutex
	readCond   *sync.Cond

	writeMu sync.Mutex

	readDeadline  time.Time
	writeDeadline time.Time
	deadlineMu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	// router tracks the signal router multiplexing this conn's Engine.
	router *signalRouter

	// timeProvider provides time for deadline checks (injectable for testing).
	timeProvider TimeProvider
}

// newOverlayConn creates an OverlayConn and registers it with the signal
// router for eng, so inbound payloads from remoteID land in its read buffer.
func newOverlayConn(eng *engine.Engine, remoteID dht.NodeID) *OverlayConn {
	ctx, cancel := context.WithCancel(context.Background())

	conn := &OverlayConn{
		eng:          eng,
		remoteID:     remoteID,
		localAddr:    NewNodeAddrFromID(eng.LocalNodeID()),
		remoteAddr:   NewNodeAddrFromID(remoteID),
		readBuffer:   new(bytes.Buffer),
		ctx:          ctx,
		cancel:       cancel,
		timeProvider: defaultTimeProvider,
	}
	conn.readCond = sync.NewCond(&conn.readMu)

	conn.router = getOrCreateRouter(eng)
	conn.router.registerConnection(conn)

	return conn
}

// validateReadInput checks if the provided buffer is valid for reading.
func (c *OverlayConn) validateReadInput(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	return -1, nil // Continue processing
}

// checkConnectionClosed verifies the connection is not closed.
func (c *OverlayConn) checkConnectionClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return nil
}

// setupReadTimeout configures the timeout channel for read operations.
// Returns the timeout channel and a cleanup function that must be called to
// prevent timer leaks. The cleanup function is safe to call multiple times.
func (c *OverlayConn) setupReadTimeout() (<-chan time.Time, func()) {
	c.deadlineMu.RLock()
	deadline := c.readDeadline
	c.deadlineMu.RUnlock()

	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		cleanup := func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		return timer.C, cleanup
	}
	return nil, func() {}
}

// waitForDataSignal waits for data availability signal with timeout handling.
func (c *OverlayConn) waitForDataSignal(timeout <-chan time.Time) error {
	done := make(chan struct{})
	go func() {
		c.readCond.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-timeout:
		return &OverlayNetError{Op: "read", Err: ErrTimeout}
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// waitForReadData waits for data to be available in the read buffer.
func (c *OverlayConn) waitForReadData(timeout <-chan time.Time) error {
	for c.readBuffer.Len() == 0 {
		if err := c.checkConnectionClosed(); err != nil {
			return err
		}
		if err := c.waitForDataSignal(timeout); err != nil {
			return err
		}
	}
	return nil
}

// Read implements net.Conn.Read().
func (c *OverlayConn) Read(b []byte) (int, error) {
	if n, err := c.validateReadInput(b); n >= 0 {
		return n, err
	}

	if err := c.checkConnectionClosed(); err != nil {
		return 0, err
	}

	timeout, cleanup := c.setupReadTimeout()
	defer cleanup()

	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.waitForReadData(timeout); err != nil {
		return 0, err
	}

	return c.readBuffer.Read(b)
}

// deliver appends payload to the read buffer and wakes any blocked Read.
// Called by the signal router when a payload addressed to this conn's
// remote peer arrives.
func (c *OverlayConn) deliver(payload []byte) {
	c.readMu.Lock()
	c.readBuffer.Write(payload)
	c.readCond.Broadcast()
	c.readMu.Unlock()
}

// Write implements net.Conn.Write(). It chunks large payloads and sends each
// chunk as an independent signal; there is no delivery acknowledgement.
func (c *OverlayConn) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	if err := c.checkConnectionClosed(); err != nil {
		return 0, err
	}

	if err := c.checkWriteDeadline(); err != nil {
		return 0, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.writeChunkedData(b)
}

// checkWriteDeadline verifies if the write deadline has been exceeded.
func (c *OverlayConn) checkWriteDeadline() error {
	c.deadlineMu.RLock()
	deadline := c.writeDeadline
	c.deadlineMu.RUnlock()

	if !deadline.IsZero() && getTimeProvider(c.timeProvider).Now().After(deadline) {
		return &OverlayNetError{Op: "write", Err: ErrTimeout}
	}
	return nil
}

// writeChunkedData writes data in chunks, respecting maxChunkSize.
func (c *OverlayConn) writeChunkedData(b []byte) (int, error) {
	data := b
	totalWritten := 0

	c.deadlineMu.RLock()
	deadline := c.writeDeadline
	c.deadlineMu.RUnlock()

	for len(data) > 0 {
		chunkSize := len(data)
		if chunkSize > maxChunkSize {
			chunkSize = maxChunkSize
		}

		chunk := data[:chunkSize]
		if err := c.eng.SendSignal(c.remoteID, chunk); err != nil {
			if totalWritten > 0 {
				return totalWritten, &OverlayNetError{Op: "write", Err: fmt.Errorf("%w: %v", ErrPartialWrite, err)}
			}
			return 0, &OverlayNetError{Op: "write", Err: err}
		}

		totalWritten += chunkSize
		data = data[chunkSize:]

		if !deadline.IsZero() && getTimeProvider(c.timeProvider).Now().After(deadline) {
			if totalWritten > 0 {
				return totalWritten, &OverlayNetError{Op: "write", Err: fmt.Errorf("%w: %v", ErrPartialWrite, ErrTimeout)}
			}
			return 0, &OverlayNetError{Op: "write", Err: ErrTimeout}
		}
	}

	return totalWritten, nil
}

// Close implements net.Conn.Close().
func (c *OverlayConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.router != nil {
		c.router.unregisterConnection(c.remoteID)
		cleanupRouter(c.eng)
	}

	c.cancel()
	c.readMu.Lock()
	c.readCond.Broadcast()
	c.readMu.Unlock()

	return nil
}

// LocalAddr implements net.Conn.LocalAddr().
func (c *OverlayConn) LocalAddr() net.Addr {
	return c.localAddr
}

// RemoteAddr implements net.Conn.RemoteAddr().
func (c *OverlayConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// SetDeadline implements net.Conn.SetDeadline().
func (c *OverlayConn) SetDeadline(t time.Time) error {
	c.deadlineMu.Lock()
	c.readDeadline = t
	c.writeDeadline = t
	c.deadlineMu.Unlock()
	return nil
}

// SetReadDeadline implements net.Conn.SetReadDeadline().
func (c *OverlayConn) SetReadDeadline(t time.Time) error {
	c.deadlineMu.Lock()
	c.readDeadline = t
	c.deadlineMu.Unlock()
	return nil
}

// SetWriteDeadline implements net.Conn.SetWriteDeadline().
func (c *OverlayConn) SetWriteDeadline(t time.Time) error {
	c.deadlineMu.Lock()
	c.writeDeadline = t
	c.deadlineMu.Unlock()
	return nil
}

// RemoteNodeID returns the overlay node identifier this connection targets.
func (c *OverlayConn) RemoteNodeID() dht.NodeID {
	return c.remoteID
}

// SetTimeProvider sets the time provider for deadline checks, primarily for
// deterministic tests.
func (c *OverlayConn) SetTimeProvider(tp TimeProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeProvider = tp
}
