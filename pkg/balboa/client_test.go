// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import (
	"bytes"
	"io"
	"testing"
	"time"
)

// recordConn captures outbound wire bytes; inbound frames are injected
// straight into the state machine, so Read never answers.
type recordConn struct {
	out bytes.Buffer
}

func (c *recordConn) Read(p []byte) (int, error)  { return 0, io.EOF }
func (c *recordConn) Write(p []byte) (int, error) { return c.out.Write(p) }

// deliver decodes one wire frame and runs it through the client as the
// read loop would.
func deliver(t *testing.T, c *Client, wire []byte) {
	t.Helper()
	f, err := DecodeFrame(wire)
	if err != nil {
		t.Fatalf("DecodeFrame(% X): %v", wire, err)
	}
	m, err := ParseMessage(f)
	if err != nil {
		t.Fatalf("ParseMessage(%v): %v", f, err)
	}
	c.handle(f, m)
}

var (
	wireNewClientCTS = []byte{0x7E, 0x05, 0xFE, 0xBF, 0x00, 0xAC, 0x7E}
	wireAssignReq    = []byte{0x7E, 0x08, 0xFE, 0xBF, 0x01, 0x02, 0xF1, 0x73, 0xB9, 0x7E}
	wireAssignResp5  = []byte{0x7E, 0x08, 0xFE, 0xBF, 0x02, 0x05, 0x00, 0x00, 0xCA, 0x7E}
	wireAck5         = []byte{0x7E, 0x05, 0x05, 0xBF, 0x03, 0x25, 0x7E}
	wireExistingReq5 = []byte{0x7E, 0x05, 0x05, 0xBF, 0x04, 0x30, 0x7E}
	wireExistingRsp5 = []byte{0x7E, 0x08, 0x05, 0xBF, 0x05, 0x04, 0x08, 0x00, 0x60, 0x7E}
	wireCTS5         = []byte{0x7E, 0x05, 0x05, 0xBF, 0x06, 0x3E, 0x7E}
	wireCTS7         = []byte{0x7E, 0x05, 0x07, 0xBF, 0x06, 0xE8, 0x7E}
	wireNTS5         = []byte{0x7E, 0x05, 0x05, 0xBF, 0x07, 0x39, 0x7E}
	wireTogglePump15 = []byte{0x7E, 0x07, 0x05, 0xBF, 0x11, 0x04, 0x00, 0xB5, 0x7E}
)

func TestClient_ArbitrationHappyPath(t *testing.T) {
	conn := &recordConn{}
	c := NewClient(conn)
	c.SetNonce([3]byte{0x02, 0xF1, 0x73})

	if err := c.TogglePump(1); err != nil {
		t.Fatal(err)
	}

	deliver(t, c, wireNewClientCTS)
	if c.State() != StateRequesting {
		t.Fatalf("state after invitation = %v, want requesting", c.State())
	}

	deliver(t, c, wireAssignResp5)
	if c.State() != StateAssigned {
		t.Fatalf("state after assignment = %v, want assigned", c.State())
	}
	if ch, ok := c.Channel(); !ok || ch != 5 {
		t.Fatalf("Channel() = %d, %v, want 5, true", ch, ok)
	}

	deliver(t, c, wireCTS5)
	if c.QueueLen() != 0 {
		t.Errorf("QueueLen() after grant = %d, want 0", c.QueueLen())
	}
	if c.State() != StateAssigned {
		t.Errorf("state after grant = %v, want assigned", c.State())
	}

	// Outbound wire: assignment request, then ack, then the queued
	// toggle stamped with the granted channel.
	var want []byte
	want = append(want, wireAssignReq...)
	want = append(want, wireAck5...)
	want = append(want, wireTogglePump15...)
	if !bytes.Equal(conn.out.Bytes(), want) {
		t.Errorf("outbound = % X, want % X", conn.out.Bytes(), want)
	}
}

func TestClient_RepeatedInvitation(t *testing.T) {
	// The assignment request can be lost on a noisy bus; every further
	// invitation gets a fresh request.
	conn := &recordConn{}
	c := NewClient(conn)
	c.SetNonce([3]byte{0x02, 0xF1, 0x73})

	deliver(t, c, wireNewClientCTS)
	deliver(t, c, wireNewClientCTS)

	want := append(append([]byte(nil), wireAssignReq...), wireAssignReq...)
	if !bytes.Equal(conn.out.Bytes(), want) {
		t.Errorf("outbound = % X, want two assignment requests", conn.out.Bytes())
	}
}

func TestClient_IdleGrant(t *testing.T) {
	conn := &recordConn{}
	c := NewClientWithChannel(conn, 5)

	deliver(t, c, wireCTS5)
	if !bytes.Equal(conn.out.Bytes(), wireNTS5) {
		t.Errorf("outbound = % X, want nothing-to-send % X", conn.out.Bytes(), wireNTS5)
	}
}

func TestClient_GrantForOtherChannel(t *testing.T) {
	conn := &recordConn{}
	c := NewClientWithChannel(conn, 5)
	c.Send(NewToggleItem(ItemPump1))

	deliver(t, c, wireCTS7)
	if conn.out.Len() != 0 {
		t.Errorf("outbound on foreign grant = % X, want none", conn.out.Bytes())
	}
	if c.QueueLen() != 1 {
		t.Errorf("QueueLen() = %d, want 1", c.QueueLen())
	}
}

func TestClient_ExistingClientPoll(t *testing.T) {
	conn := &recordConn{}
	c := NewClientWithChannel(conn, 5)

	deliver(t, c, wireExistingReq5)
	if !bytes.Equal(conn.out.Bytes(), wireExistingRsp5) {
		t.Errorf("outbound = % X, want existing-client response % X", conn.out.Bytes(), wireExistingRsp5)
	}
	if c.State() != StateAssigned {
		t.Errorf("state = %v, want assigned", c.State())
	}
}

func TestClient_GrantTimeout(t *testing.T) {
	conn := &recordConn{}
	c := NewClient(conn)
	c.SetNonce([3]byte{0x02, 0xF1, 0x73})

	now := time.Unix(1000, 0)
	c.SetClock(func() time.Time { return now })

	deliver(t, c, wireNewClientCTS)
	deliver(t, c, wireAssignResp5) // arms the grant deadline

	// Traffic keeps flowing for other channels but channel 5 is never
	// addressed. Past the deadline the client degrades to listen-only.
	now = now.Add(9 * time.Second)
	deliver(t, c, wireCTS7)
	if c.State() != StateAssigned {
		t.Fatalf("state before deadline = %v, want assigned", c.State())
	}

	now = now.Add(2 * time.Second)
	deliver(t, c, wireCTS7)
	if c.State() != StateStale {
		t.Fatalf("state after %s of silence = %v, want stale", 11*time.Second, c.State())
	}
	if ch, ok := c.Channel(); !ok || ch != 5 {
		t.Errorf("Channel() while stale = %d, %v, want 5, true", ch, ok)
	}

	// A late grant on the channel revives it.
	deliver(t, c, wireCTS5)
	if c.State() != StateAssigned {
		t.Errorf("state after late grant = %v, want assigned", c.State())
	}
}

func TestClient_ToggleEdgeTriggered(t *testing.T) {
	// Two toggles are two wire frames; a toggle is an edge, not a level.
	conn := &recordConn{}
	c := NewClientWithChannel(conn, 5)

	if err := c.TogglePump(1); err != nil {
		t.Fatal(err)
	}
	if err := c.TogglePump(1); err != nil {
		t.Fatal(err)
	}

	deliver(t, c, wireCTS5)
	deliver(t, c, wireCTS5)

	want := append(append([]byte(nil), wireTogglePump15...), wireTogglePump15...)
	if !bytes.Equal(conn.out.Bytes(), want) {
		t.Errorf("outbound = % X, want the toggle frame twice", conn.out.Bytes())
	}
}

func TestClient_StatusObserver(t *testing.T) {
	conn := &recordConn{}
	c := NewClientWithChannel(conn, 5)

	type event struct {
		snap    StatusSnapshot
		changed bool
	}
	var events []event
	c.OnStatus(func(s StatusSnapshot, changed bool) {
		events = append(events, event{s, changed})
	})

	su := StatusUpdate{Raw: testStatusRaw()}
	c.handle(su.Frame(), su)
	c.handle(su.Frame(), su)

	su.Raw[11] ^= 0x10
	c.handle(su.Frame(), su)

	if len(events) != 3 {
		t.Fatalf("observer called %d times, want 3", len(events))
	}
	if !events[0].changed || events[1].changed || !events[2].changed {
		t.Errorf("changed sequence = %v %v %v, want true false true",
			events[0].changed, events[1].changed, events[2].changed)
	}
	if p, _ := events[2].snap.Pump(3); p != PumpLow {
		t.Errorf("Pump(3) in last event = %v, want low", p)
	}

	if snap, ok := c.LastSnapshot(); !ok || !snap.Equal(events[2].snap) {
		t.Error("LastSnapshot() does not match the last observed snapshot")
	}
}

func TestClient_ConfigurationGatesStatus(t *testing.T) {
	conn := &recordConn{}
	c := NewClientWithChannel(conn, 5)

	cr := ConfigurationResponse{Data: [6]byte{0x0A, 0x00, 0x01, 0x03, 0x00, 0x00}}
	f := cr.Frame()
	f.Channel = 5
	c.handle(f, cr)

	su := StatusUpdate{Raw: testStatusRaw()}
	c.handle(su.Frame(), su)

	snap, ok := c.LastSnapshot()
	if !ok {
		t.Fatal("LastSnapshot() not ok after status broadcast")
	}
	if _, ok := snap.Pump(1); !ok {
		t.Error("Pump(1) not ok, want ok for fitted pump")
	}
	if _, ok := snap.Pump(6); ok {
		t.Error("Pump(6) ok = true, want false for absent pump")
	}
}

func TestClient_CommandsQueueWhileUnassigned(t *testing.T) {
	c := NewClient(&recordConn{})

	c.SetTemperature(38.5, ScaleCelsius)
	c.RequestConfiguration()
	if c.QueueLen() != 2 {
		t.Errorf("QueueLen() = %d, want 2", c.QueueLen())
	}

	if err := c.TogglePump(7); err == nil {
		t.Error("TogglePump(7) = nil, want range error")
	}
	if err := c.ToggleLight(3); err == nil {
		t.Error("ToggleLight(3) = nil, want range error")
	}
}
