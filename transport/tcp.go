package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// maxFrameSize bounds a single TCP-framed message to guard against a peer
// sending a bogus length prefix that would exhaust memory.
const maxFrameSize = 1 << 20

// TCPTransport carries JSON frames over persistent TCP connections, each
// message prefixed with a 4-byte big-endian length to preserve frame
// boundaries on the stream. It is kept as an example transport exercised by
// tests; the core depends only on the Transport interface.
type TCPTransport struct {
	listener   net.Listener
	listenAddr net.Addr
	handlers   map[string]FrameHandler
	conns      map[string]net.Conn
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewTCPTransport binds a TCP listener at listenAddr and starts accepting
// connections in the background.
func NewTCPTransport(listenAddr string) (Transport, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &TCPTransport{
		listener:   listener,
		listenAddr: listener.Addr(),
		handlers:   make(map[string]FrameHandler),
		conns:      make(map[string]net.Conn),
		ctx:        ctx,
		cancel:     cancel,
	}

	go t.acceptLoop()
	return t, nil
}

// RegisterHandler associates a FrameHandler with frames of the given type.
func (t *TCPTransport) RegisterHandler(frameType string, handler FrameHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[frameType] = handler
}

// Send marshals frame to JSON and writes it, length-prefixed, to addr,
// dialing a new connection if none is cached for that address.
func (t *TCPTransport) Send(frame *Frame, addr net.Addr) error {
	data, err := frame.Marshal()
	if err != nil {
		return err
	}

	conn, err := t.connFor(addr)
	if err != nil {
		return err
	}

	return writeLengthPrefixed(conn, data)
}

// Close stops the accept loop, closes the listener, and closes all cached
// client connections.
func (t *TCPTransport) Close() error {
	t.cancel()
	err := t.listener.Close()

	t.mu.Lock()
	for key, conn := range t.conns {
		conn.Close()
		delete(t.conns, key)
	}
	t.mu.Unlock()

	return err
}

// LocalAddr returns the listener's bound address.
func (t *TCPTransport) LocalAddr() net.Addr {
	return t.listenAddr
}

func (t *TCPTransport) connFor(addr net.Addr) (net.Conn, error) {
	key := addr.String()

	t.mu.RLock()
	conn, ok := t.conns[key]
	t.mu.RUnlock()
	if ok {
		return conn, nil
	}

	conn, err := net.Dial("tcp", key)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.conns[key] = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return conn, nil
}

func (t *TCPTransport) acceptLoop() {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "acceptLoop",
		"transport": "tcp",
	})

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
				logger.WithError(err).Debug("accept failed")
				continue
			}
		}

		key := conn.RemoteAddr().String()
		t.mu.Lock()
		t.conns[key] = conn
		t.mu.Unlock()

		go t.readLoop(conn)
	}
}

func (t *TCPTransport) readLoop(conn net.Conn) {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "readLoop",
		"transport": "tcp",
		"remote":    conn.RemoteAddr().String(),
	})

	defer func() {
		t.mu.Lock()
		delete(t.conns, conn.RemoteAddr().String())
		t.mu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		data, err := readLengthPrefixed(reader)
		if err != nil {
			logger.WithError(err).Debug("connection closed")
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			logger.WithError(err).Debug("dropping malformed frame")
			continue
		}

		t.mu.RLock()
		handler, exists := t.handlers[frame.Type]
		t.mu.RUnlock()

		if exists {
			go handler(frame, conn.RemoteAddr())
		}
	}
}

func writeLengthPrefixed(conn net.Conn, data []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

func readLengthPrefixed(reader *bufio.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := readFull(reader, header); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header)
	if size == 0 || size > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	data := make([]byte, size)
	if _, err := readFull(reader, data); err != nil {
		return nil, err
	}
	return data, nil
}

func readFull(reader *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := reader.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
