package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// UDPTransport is a concrete Transport carrying JSON frames over UDP. It is
// kept as an example transport exercised by tests; the core depends only on
// the Transport interface.
type UDPTransport struct {
	conn       net.PacketConn
	listenAddr net.Addr
	handlers   map[string]FrameHandler
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewUDPTransport binds a UDP socket at listenAddr and starts its receive
// loop in the background.
func NewUDPTransport(listenAddr string) (Transport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &UDPTransport{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		handlers:   make(map[string]FrameHandler),
		ctx:        ctx,
		cancel:     cancel,
	}

	go t.receiveLoop()
	return t, nil
}

// RegisterHandler associates a FrameHandler with frames of the given type.
func (t *UDPTransport) RegisterHandler(frameType string, handler FrameHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[frameType] = handler
}

// Send marshals frame to JSON and writes it to addr.
func (t *UDPTransport) Send(frame *Frame, addr net.Addr) error {
	data, err := frame.Marshal()
	if err != nil {
		return err
	}
	_, err = t.conn.WriteTo(data, addr)
	return err
}

// Close stops the receive loop and closes the underlying socket.
func (t *UDPTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}

// LocalAddr returns the socket's bound address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) receiveLoop() {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "receiveLoop",
		"transport": "udp",
	})

	buffer := make([]byte, 65536)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := t.conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			continue
		}

		frame, err := ParseFrame(buffer[:n])
		if err != nil {
			logger.WithError(err).Debug("dropping malformed frame")
			continue
		}

		t.mu.RLock()
		handler, exists := t.handlers[frame.Type]
		t.mu.RUnlock()

		if exists {
			go handler(frame, addr)
		}
	}
}
