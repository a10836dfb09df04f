// Package config holds the configuration surface for a node participating
// in the overlay: Kademlia parameters, timeouts, and membership settings.
package config

import (
	"errors"
	"time"
)

// ErrBridgeAuthTokenRequired is returned by New when no bridge auth token
// was set on a closed (non-open) network.
var ErrBridgeAuthTokenRequired = errors.New("config: bridgeAuthToken is required")

// Config is the full configuration surface a node must honor.
type Config struct {
	// K is the bucket size / replication factor. Default 20.
	K int
	// Alpha is the lookup concurrency parameter. Default 3.
	Alpha int
	// NodeIDBits is the width of the identifier space. Default 160.
	NodeIDBits int

	RequestTimeout             time.Duration
	LookupTimeout              time.Duration
	BucketRefreshInterval      time.Duration
	RepublishInterval          time.Duration
	ValueExpiry                time.Duration
	PerCandidateDeadline       time.Duration
	OnboardingFindNodeDeadline time.Duration
	IdleVisibility             time.Duration
	DedupRetention             time.Duration

	MaxConnectionsPerNode int
	HelperCandidatesN     int

	// MaxSignalHops bounds overlay signal relaying (Open Question decision,
	// default 4).
	MaxSignalHops int

	// BridgeAuthToken authenticates a bridge to a bootstrap server. Required
	// unless OpenNetwork is true.
	BridgeAuthToken string
	// OpenNetwork disables membership-token admission entirely.
	OpenNetwork bool
	// CreateNewDHT marks this node as the genesis node of a new overlay.
	CreateNewDHT bool

	// OutboundQueueSize bounds a connection.Manager's per-peer outbound
	// frame queue. Once it is full, Send rejects each new frame with
	// ErrQueueFull; frames already queued are not dropped.
	OutboundQueueSize int
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithBridgeAuthToken sets the shared secret a bridge presents to a
// bootstrap server.
func WithBridgeAuthToken(token string) Option {
	return func(c *Config) { c.BridgeAuthToken = token }
}

// WithOpenNetwork toggles membership-token admission off.
func WithOpenNetwork(open bool) Option {
	return func(c *Config) { c.OpenNetwork = open }
}

// WithCreateNewDHT marks this node as the genesis of a new overlay.
func WithCreateNewDHT(create bool) Option {
	return func(c *Config) { c.CreateNewDHT = create }
}

// WithMaxSignalHops overrides the default signal hop-count bound.
func WithMaxSignalHops(hops int) Option {
	return func(c *Config) { c.MaxSignalHops = hops }
}

// WithK overrides the bucket size / replication factor.
func WithK(k int) Option {
	return func(c *Config) { c.K = k }
}

// WithAlpha overrides the lookup concurrency parameter.
func WithAlpha(alpha int) Option {
	return func(c *Config) { c.Alpha = alpha }
}

// New builds a Config with its defaults, applying opts in order, then
// validates the result.
func New(opts ...Option) (*Config, error) {
	c := &Config{
		K:                          20,
		Alpha:                      3,
		NodeIDBits:                 160,
		RequestTimeout:             10_000 * time.Millisecond,
		LookupTimeout:              30_000 * time.Millisecond,
		BucketRefreshInterval:      3_600_000 * time.Millisecond,
		RepublishInterval:          3_600_000 * time.Millisecond,
		ValueExpiry:                86_400_000 * time.Millisecond,
		PerCandidateDeadline:       10_000 * time.Millisecond,
		OnboardingFindNodeDeadline: 30_000 * time.Millisecond,
		IdleVisibility:             30_000 * time.Millisecond,
		DedupRetention:             300_000 * time.Millisecond,
		MaxConnectionsPerNode:      20,
		HelperCandidatesN:          3,
		MaxSignalHops:              4,
		OutboundQueueSize:          50,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks invariants that New cannot enforce through defaults alone.
func (c *Config) Validate() error {
	if !c.OpenNetwork && c.BridgeAuthToken == "" {
		return ErrBridgeAuthTokenRequired
	}
	if c.K <= 0 {
		return errors.New("config: k must be positive")
	}
	if c.Alpha <= 0 {
		return errors.New("config: alpha must be positive")
	}
	if c.NodeIDBits <= 0 {
		return errors.New("config: nodeIdBits must be positive")
	}
	if c.MaxSignalHops <= 0 {
		return errors.New("config: maxSignalHops must be positive")
	}
	return nil
}
