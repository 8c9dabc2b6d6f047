// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the client's position in the channel-arbitration lifecycle.
type State int

// Arbitration states
const (
	// StateUnassigned: no channel; waiting for the board's broadcast
	// invitation.
	StateUnassigned State = iota

	// StateRequesting: a channel-assignment request is outstanding.
	StateRequesting

	// StateAssigned: the board granted a channel and grants are expected.
	StateAssigned

	// StateStale: the channel's grant-timeout expired. Listen-only:
	// enqueueing still works, but nothing drains until the board
	// addresses this channel again.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUnassigned:
		return "unassigned"
	case StateRequesting:
		return "requesting"
	case StateAssigned:
		return "assigned"
	case StateStale:
		return "stale"
	}
	return "unknown"
}

// Grant timeout and health-check defaults.
const (
	// grantTimeout bounds how long a channel may go unaddressed before
	// the client stops expecting grants. The board may silently stop
	// granting a channel it revoked or never truly assigned; without the
	// timeout the client would wait forever believing itself addressable.
	grantTimeout = 10 * time.Second

	// statusInterval is the broadcast cadence observed on real buses;
	// the health check fires after healthFactor missed broadcasts.
	statusInterval = time.Second
	healthFactor   = 10
)

// Client runs the bus protocol over one transport: it decodes every
// inbound frame, drives channel arbitration, answers bus-courtesy polls,
// drains the send queue on grants, and feeds status broadcasts through
// the diffing decoder.
//
// Command methods may be called from any goroutine; they only enqueue.
// Commands enqueued while unassigned or stale are not an error — they
// wait until (if ever) a grant arrives. Delivery is confirmed only by
// observing the resulting status changes.
type Client struct {
	conn    io.ReadWriter
	scanner *Scanner
	queue   *SendQueue
	decoder *StatusDecoder
	log     *logrus.Entry

	now   func() time.Time // injected for deterministic timeout tests
	nonce [3]byte

	mu            sync.Mutex
	state         State
	channel       uint8
	grantDeadline time.Time // zero while disarmed
	lastStatus    time.Time
	lastResync    time.Time

	onStatus  func(StatusSnapshot, bool)
	onMessage func(Message)
}

// NewClient creates an unassigned client on conn. The client obtains a
// channel through the assignment handshake once Run observes the board's
// invitation.
func NewClient(conn io.ReadWriter) *Client {
	c := &Client{
		conn:    conn,
		scanner: NewScanner(conn),
		queue:   NewSendQueue(),
		decoder: NewStatusDecoder(),
		log:     logrus.WithField("component", "balboa"),
		now:     time.Now,
		state:   StateUnassigned,
	}
	if _, err := rand.Read(c.nonce[:]); err != nil {
		// Collision with another client's nonce only risks a confused
		// handshake, which the board resolves by re-inviting.
		c.nonce = [3]byte{0x02, 0xF1, 0x73}
	}
	return c
}

// NewClientWithChannel creates a client that assumes channel is already
// assigned to it, as spa WiFi modules do on their TCP-tunneled link. The
// grant timeout is armed immediately: if the board never addresses the
// channel the client degrades to listen-only.
func NewClientWithChannel(conn io.ReadWriter, channel uint8) *Client {
	c := NewClient(conn)
	c.state = StateAssigned
	c.channel = channel
	c.grantDeadline = c.now().Add(grantTimeout)
	return c
}

// SetClock replaces the wall clock, for tests.
func (c *Client) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// SetNonce replaces the random client-identifying nonce.
func (c *Client) SetNonce(nonce [3]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce = nonce
}

// OnStatus registers the single observer for decoded status broadcasts.
// changed is false when the broadcast's raw bytes equal the previous one.
func (c *Client) OnStatus(fn func(snapshot StatusSnapshot, changed bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// OnMessage registers an observer for every parsed inbound message,
// status broadcasts included.
func (c *Client) OnMessage(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// State returns the arbitration state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Channel returns the assigned channel and whether one is held.
func (c *Client) Channel() (uint8, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, c.state == StateAssigned || c.state == StateStale
}

// LastSnapshot returns the most recent decoded status, if any.
func (c *Client) LastSnapshot() (StatusSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decoder.Last()
}

// Send enqueues any catalog message for transmission on the next grant.
func (c *Client) Send(m Message) {
	c.queue.Enqueue(m)
}

// QueueLen reports how many messages await a grant.
func (c *Client) QueueLen() int {
	return c.queue.Len()
}

// Toggle enqueues an edge-triggered toggle of the named item.
func (c *Client) Toggle(item ItemCode) {
	c.Send(NewToggleItem(item))
}

// TogglePump enqueues a toggle for pump n (1-6).
func (c *Client) TogglePump(n int) error {
	m, err := NewTogglePump(n)
	if err != nil {
		return err
	}
	c.Send(m)
	return nil
}

// ToggleLight enqueues a toggle for light n (1-2).
func (c *Client) ToggleLight(n int) error {
	m, err := NewToggleLight(n)
	if err != nil {
		return err
	}
	c.Send(m)
	return nil
}

// SetTemperature enqueues a set-point change in the given scale.
func (c *Client) SetTemperature(t float64, scale TemperatureScale) {
	c.Send(NewSetTemperature(t, scale))
}

// SetTime enqueues a board-clock change.
func (c *Client) SetTime(hour, minute uint8, mode ClockMode) {
	c.Send(NewSetTime(hour, minute, mode))
}

// SetPreference enqueues a preference change.
func (c *Client) SetPreference(code PreferenceCode, value uint8) {
	c.Send(SetPreferenceRequest{Code: code, Value: value})
}

// SetFilterCycles enqueues a filtration-schedule change.
func (c *Client) SetFilterCycles(fc FilterCycles) {
	c.Send(fc)
}

// RequestSettings enqueues a raw settings-category request.
func (c *Client) RequestSettings(code [3]byte) {
	c.Send(NewSettingsRequest(code))
}

// RequestConfiguration enqueues a capability-block request.
func (c *Client) RequestConfiguration() { c.RequestSettings(SettingsConfiguration) }

// RequestInformation enqueues a board-identity request.
func (c *Client) RequestInformation() { c.RequestSettings(SettingsInformation) }

// RequestFilterCycles enqueues a filtration-schedule request.
func (c *Client) RequestFilterCycles() { c.RequestSettings(SettingsFilterCycles) }

// RequestPreferences enqueues a preference-block request.
func (c *Client) RequestPreferences() { c.RequestSettings(SettingsPreferences) }

// RequestFaultLog enqueues a fault-log request; entry 0xFF is the most
// recent.
func (c *Client) RequestFaultLog(entry uint8) {
	c.Send(NewFaultLogRequest(entry))
}

// Run pulls frames from the transport until ctx is canceled or the
// transport reports EOF/closure. Framing, checksum, and catalog failures
// are logged and the span discarded; they never end the loop. A second
// goroutine watches broadcast health and requests a re-sync when the bus
// goes quiet instead of waiting passively.
func (c *Client) Run(ctx context.Context) error {
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.healthLoop(hctx)

	for {
		span, err := c.scanner.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return err
			}
			// Serial reads fail transiently (USB adapters detach and
			// reattach); wait and retry rather than dying.
			c.log.WithError(err).Warn("transport read failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		frame, err := DecodeFrame(span)
		if err != nil {
			c.log.WithError(err).Debug("dropping undecodable span")
			continue
		}
		msg, err := ParseMessage(frame)
		if err != nil {
			c.log.WithError(err).Debug("dropping unparseable frame")
			continue
		}
		c.handle(frame, msg)
	}
}

// handle runs one inbound message through the arbitration state machine
// and the status decoder. It is the only writer of arbitration state.
func (c *Client) handle(f Frame, m Message) {
	c.mu.Lock()

	switch c.state {
	case StateUnassigned:
		if _, ok := m.(NewClientClearToSend); ok {
			c.log.Debug("requesting channel")
			c.state = StateRequesting
			c.sendLocked(ChannelAssignmentRequest{Nonce: c.nonce})
		}

	case StateRequesting:
		switch mm := m.(type) {
		case NewClientClearToSend:
			// Request may have been lost; answer the next invitation too.
			c.sendLocked(ChannelAssignmentRequest{Nonce: c.nonce})
		case ChannelAssignmentResponse:
			c.channel = mm.Channel
			c.state = StateAssigned
			c.grantDeadline = c.now().Add(grantTimeout)
			c.log.WithField("channel", c.channel).Info("channel assigned, acknowledging")
			c.sendLocked(ChannelAssignmentAck{Channel: c.channel})
		}

	case StateAssigned, StateStale:
		if f.Channel != c.channel {
			c.checkGrantTimeoutLocked()
			break
		}
		switch m.(type) {
		case ExistingClientRequest:
			c.sendLocked(ExistingClientResponse{Channel: c.channel, Capabilities: DefaultCapabilities})
			c.state = StateAssigned
			c.grantDeadline = c.now().Add(grantTimeout)
		case ClientClearToSend:
			// The bus grant: the only moment this client may transmit.
			if next, ok := c.queue.TakeNext(); ok {
				c.sendLocked(next)
			} else {
				c.sendLocked(NothingToSend{Channel: c.channel})
			}
			c.state = StateAssigned
			c.grantDeadline = time.Time{}
		}
	}

	if cfg, ok := m.(ConfigurationResponse); ok {
		c.decoder.SetConfiguration(ParseConfiguration(cfg))
	}

	var snap StatusSnapshot
	var changed, isStatus bool
	if su, ok := m.(StatusUpdate); ok {
		snap, changed = c.decoder.Decode(su)
		c.lastStatus = c.now()
		isStatus = true
	}
	onStatus, onMessage := c.onStatus, c.onMessage
	c.mu.Unlock()

	if onMessage != nil {
		onMessage(m)
	}
	if isStatus && onStatus != nil {
		onStatus(snap, changed)
	}
}

// checkGrantTimeoutLocked degrades to Stale once the armed deadline
// passes. Diagnostic only: the protocol performs no active channel
// re-request; the client just stops expecting grants and keeps listening.
func (c *Client) checkGrantTimeoutLocked() {
	if c.grantDeadline.IsZero() || c.now().Before(c.grantDeadline) {
		return
	}
	c.grantDeadline = time.Time{}
	c.state = StateStale
	c.log.WithField("channel", c.channel).
		Error("no clear-to-send on channel, client will only listen")
}

// sendLocked serializes and writes one message, stamping this client's
// channel on messages built before a channel was held. Write failures are
// treated as transient and surface through the caller's reconnect path.
func (c *Client) sendLocked(m Message) {
	frame := m.Frame()
	if frame.Channel == 0 {
		frame.Channel = c.channel
	}
	b, err := frame.Encode()
	if err != nil {
		c.log.WithError(err).Error("dropping unencodable message")
		return
	}
	if _, err := c.conn.Write(b); err != nil {
		c.log.WithError(err).Warn("transport write failed")
		return
	}
	c.log.WithField("frame", frame.String()).Debug("sent")
}

// healthLoop watches the broadcast cadence. A healthy board chatters
// constantly; prolonged silence means state is being missed, so ask for a
// configuration re-sync rather than waiting passively.
func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		quietFor := c.now().Sub(c.lastStatus)
		stale := !c.lastStatus.IsZero() && quietFor > healthFactor*statusInterval
		resyncDue := stale && c.now().Sub(c.lastResync) > healthFactor*statusInterval
		if resyncDue {
			c.lastResync = c.now()
		}
		c.mu.Unlock()

		if resyncDue {
			c.log.WithField("quiet", quietFor).Warn("no status broadcast, requesting re-sync")
			c.RequestConfiguration()
		}
	}
}
