package connection

import (
	"encoding/base64"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nodeoverlay/dht/config"
	"github.com/nodeoverlay/dht/crypto"
	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/noise"
	"github.com/nodeoverlay/dht/transport"
)

const frameTypeNoise = "noise_msg"

type noiseMessageBody struct {
	Data string `json:"data"`
}

// ApplicationFrameHandler is invoked for every frame received once the
// connection has reached Ready.
type ApplicationFrameHandler func(frame *transport.Frame)

// Manager drives one remote peer's connection lifecycle: dialing, the
// version/identity handshake, the Noise-IK key exchange, and a bounded
// outbound queue once the peer is Ready.
type Manager struct {
	cfg *config.Config
	tr  transport.Transport

	localKeyPair *crypto.KeyPair
	localNodeID  dht.NodeID
	buildID      string

	remoteAddr      net.Addr
	remoteNodeID    dht.NodeID
	remotePublicKey [32]byte

	role      noise.HandshakeRole
	handshake *noise.IKHandshake

	mu    sync.RWMutex
	state State

	outbound  chan *transport.Frame
	done      chan struct{}
	closeOnce sync.Once

	onReady ApplicationFrameHandler

	logger *logrus.Entry
}

// NewManager constructs a Manager for a single remote peer. role determines
// which side of the Noise-IK exchange this manager plays; role is Initiator
// for outbound dials and Responder for inbound connections accepted by a
// listener.
func NewManager(cfg *config.Config, tr transport.Transport, localKeyPair *crypto.KeyPair, localNodeID dht.NodeID, buildID string, remoteAddr net.Addr, role noise.HandshakeRole) *Manager {
	return &Manager{
		cfg:          cfg,
		tr:           tr,
		localKeyPair: localKeyPair,
		localNodeID:  localNodeID,
		buildID:      buildID,
		remoteAddr:   remoteAddr,
		role:         role,
		state:        Idle,
		outbound:     make(chan *transport.Frame, cfg.OutboundQueueSize),
		done:         make(chan struct{}),
		logger: logrus.WithFields(logrus.Fields{
			"component": "connection.Manager",
			"remote":    remoteAddr.String(),
		}),
	}
}

// State returns the connection's current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// RemoteNodeID returns the peer's nodeId, valid once the handshake envelope
// exchange has completed (State() >= Authenticated).
func (m *Manager) RemoteNodeID() dht.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remoteNodeID
}

// RemoteAddr returns the transport address this connection dials/accepts.
func (m *Manager) RemoteAddr() net.Addr {
	return m.remoteAddr
}

// OnReady registers the handler invoked for application frames once the
// connection reaches Ready.
func (m *Manager) OnReady(handler ApplicationFrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReady = handler
}

func (m *Manager) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.state, to) {
		return ErrInvalidTransition
	}
	m.logger.WithFields(logrus.Fields{
		"from": m.state.String(),
		"to":   to.String(),
	}).Debug("connection state transition")
	m.state = to
	return nil
}

// Dial begins an outbound connection: it sends our handshake envelope and
// moves to Handshaking. The caller feeds the peer's replies back in via
// HandleFrame as they arrive from the transport.
func (m *Manager) Dial() error {
	if err := m.transition(Dialing); err != nil {
		return err
	}

	envelope := m.localEnvelope()
	frame, err := transport.NewFrame(transport.FrameTypeHandshake, "", envelope)
	if err != nil {
		return err
	}

	if err := m.tr.Send(frame, m.remoteAddr); err != nil {
		m.fail(err)
		return err
	}

	return m.transition(Handshaking)
}

// Accept begins an inbound connection's lifecycle without sending anything
// first; the peer is expected to have already sent (or to next send) a
// handshake envelope, delivered via HandleFrame.
func (m *Manager) Accept() error {
	return m.transition(Handshaking)
}

// HandleFrame routes one inbound frame according to the connection's
// current state: handshake and noise_msg frames drive the state machine,
// everything else is only accepted once Ready.
func (m *Manager) HandleFrame(frame *transport.Frame) error {
	switch frame.Type {
	case transport.FrameTypeHandshake:
		return m.handleHandshakeFrame(frame)
	case frameTypeNoise:
		return m.handleNoiseFrame(frame)
	default:
		if m.State() != Ready {
			return ErrNotReady
		}
		m.mu.RLock()
		handler := m.onReady
		m.mu.RUnlock()
		if handler != nil {
			handler(frame)
		}
		return nil
	}
}

func (m *Manager) localEnvelope() transport.HandshakeEnvelope {
	return transport.HandshakeEnvelope{
		ProtocolVersion: transport.ProtocolV1,
		BuildID:         m.buildID,
		NodeID:          m.localNodeID.String(),
		PublicKey:       base64.StdEncoding.EncodeToString(m.localKeyPair.Public[:]),
	}
}

func (m *Manager) handleHandshakeFrame(frame *transport.Frame) error {
	var remote transport.HandshakeEnvelope
	if err := frame.Decode(&remote); err != nil {
		m.fail(err)
		return err
	}

	local := m.localEnvelope()
	if code := transport.CheckHandshake(local, remote); code != "" {
		var err error
		switch code {
		case transport.MismatchIdentity:
			err = ErrIdentityMismatch
		default:
			err = ErrVersionMismatch
		}
		herr := &HandshakeError{Code: string(code), Cause: err}
		m.fail(herr)
		return herr
	}

	pubKeyBytes, err := base64.StdEncoding.DecodeString(remote.PublicKey)
	if err != nil || len(pubKeyBytes) != 32 {
		herr := &HandshakeError{Code: string(transport.MismatchIdentity), Cause: ErrIdentityMismatch}
		m.fail(herr)
		return herr
	}
	var remotePub [32]byte
	copy(remotePub[:], pubKeyBytes)

	remoteID, err := dht.ParseNodeID(remote.NodeID)
	if err != nil {
		m.fail(err)
		return err
	}
	if remoteID != dht.KeyedNodeID(remotePub) {
		herr := &HandshakeError{Code: string(transport.MismatchIdentity), Cause: ErrIdentityMismatch}
		m.fail(herr)
		return herr
	}

	m.remotePublicKey = remotePub
	m.remoteNodeID = remoteID

	if m.State() == Idle {
		if err := m.transition(Handshaking); err != nil {
			m.fail(err)
			return err
		}
	}

	ik, err := noise.NewIKHandshake(m.localKeyPair.Private[:], m.peerStaticForRole(remotePub), m.role)
	if err != nil {
		m.fail(err)
		return err
	}
	m.handshake = ik

	if m.role == noise.Responder {
		ackFrame, err := transport.NewFrame(transport.FrameTypeHandshake, "", m.localEnvelope())
		if err != nil {
			m.fail(err)
			return err
		}
		if err := m.tr.Send(ackFrame, m.remoteAddr); err != nil {
			m.fail(err)
			return err
		}
	}

	return nil
}

func (m *Manager) peerStaticForRole(remotePub [32]byte) []byte {
	if m.role == noise.Initiator {
		cp := remotePub
		return cp[:]
	}
	return nil
}

func (m *Manager) handleNoiseFrame(frame *transport.Frame) error {
	var body noiseMessageBody
	if err := frame.Decode(&body); err != nil {
		m.fail(err)
		return err
	}

	received, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil {
		m.fail(err)
		return err
	}

	if m.handshake == nil {
		err := ErrInvalidTransition
		m.fail(err)
		return err
	}

	if m.role == noise.Initiator {
		if _, complete, err := m.handshake.ReadMessage(received); err != nil {
			m.fail(err)
			return err
		} else if complete {
			return m.finishHandshake()
		}
		return nil
	}

	reply, complete, err := m.handshake.WriteMessage(nil, received)
	if err != nil {
		m.fail(err)
		return err
	}
	replyFrame, err := transport.NewFrame(frameTypeNoise, "", noiseMessageBody{Data: base64.StdEncoding.EncodeToString(reply)})
	if err != nil {
		m.fail(err)
		return err
	}
	if err := m.tr.Send(replyFrame, m.remoteAddr); err != nil {
		m.fail(err)
		return err
	}
	if complete {
		return m.finishHandshake()
	}
	return nil
}

// StartNoise sends the initiator's first Noise-IK message; called once the
// handshake envelope exchange has produced a handshake object on the
// initiator side.
func (m *Manager) StartNoise() error {
	if m.role != noise.Initiator || m.handshake == nil {
		return ErrInvalidTransition
	}
	msg, _, err := m.handshake.WriteMessage(nil, nil)
	if err != nil {
		m.fail(err)
		return err
	}
	frame, err := transport.NewFrame(frameTypeNoise, "", noiseMessageBody{Data: base64.StdEncoding.EncodeToString(msg)})
	if err != nil {
		m.fail(err)
		return err
	}
	return m.tr.Send(frame, m.remoteAddr)
}

func (m *Manager) finishHandshake() error {
	if err := m.transition(Authenticated); err != nil {
		return err
	}
	go m.drainOutbound()
	return m.transition(Ready)
}

// Send enqueues a frame for delivery once the connection is Ready. It
// returns ErrNotReady before that and ErrQueueFull if the outbound queue is
// saturated, applying backpressure instead of blocking or dropping.
func (m *Manager) Send(frameType, reqID string, payload interface{}) error {
	if m.State() != Ready {
		return ErrNotReady
	}

	frame, err := transport.NewFrame(frameType, reqID, payload)
	if err != nil {
		return err
	}

	select {
	case m.outbound <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Manager) drainOutbound() {
	for {
		select {
		case <-m.done:
			return
		case frame := <-m.outbound:
			if err := m.tr.Send(frame, m.remoteAddr); err != nil {
				m.logger.WithError(err).Debug("outbound send failed")
			}
		}
	}
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	if m.state == Failed || m.state == Closing {
		m.mu.Unlock()
		return
	}
	m.state = Failed
	m.mu.Unlock()
	m.logger.WithError(err).Debug("connection failed")
	m.closeOnce.Do(func() { close(m.done) })
}

// Close transitions the connection to Closing and stops its outbound drain
// loop. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == Closing || m.state == Failed {
		m.mu.Unlock()
		return nil
	}
	m.state = Closing
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
