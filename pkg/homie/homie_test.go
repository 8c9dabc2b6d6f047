// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package homie

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken resolves immediately with no error.
type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Error() error                   { return nil }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMessage carries one inbound payload to a subscription handler.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// fakeMQTT records publishes and subscriptions in memory.
type fakeMQTT struct {
	mu       sync.Mutex
	values   map[string]string   // topic -> last payload
	history  map[string][]string // topic -> all payloads in order
	handlers map[string]mqtt.MessageHandler
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{
		values:   make(map[string]string),
		history:  make(map[string][]string),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakeMQTT) IsConnected() bool      { return true }
func (f *fakeMQTT) IsConnectionOpen() bool { return true }
func (f *fakeMQTT) Connect() mqtt.Token    { return fakeToken{} }
func (f *fakeMQTT) Disconnect(uint)        {}

func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	var s string
	switch v := payload.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	}
	f.mu.Lock()
	f.values[topic] = s
	f.history[topic] = append(f.history[topic], s)
	f.mu.Unlock()
	return fakeToken{}
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	f.handlers[topic] = cb
	f.mu.Unlock()
	return fakeToken{}
}

func (f *fakeMQTT) SubscribeMultiple(filters map[string]byte, cb mqtt.MessageHandler) mqtt.Token {
	for topic := range filters {
		f.Subscribe(topic, filters[topic], cb)
	}
	return fakeToken{}
}

func (f *fakeMQTT) Unsubscribe(...string) mqtt.Token { return fakeToken{} }
func (f *fakeMQTT) AddRoute(string, mqtt.MessageHandler) {
}
func (f *fakeMQTT) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (f *fakeMQTT) value(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[topic]
	return v, ok
}

func (f *fakeMQTT) publishCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history[topic])
}

// deliverSet invokes the recorded subscription handler for topic.
func (f *fakeMQTT) deliverSet(t *testing.T, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	cb, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", topic)
	}
	cb(f, fakeMessage{topic: topic, payload: []byte(payload)})
}

func testDevice() (*Device, *Node, *Property) {
	temp := &Property{ID: "temperature", Name: "Temperature", DataType: "float", Unit: "°C"}
	mode := &Property{
		ID: "mode", Name: "Mode", DataType: "enum", Format: "auto,manual",
		Settable: true,
	}
	node := NewNode("controller", "Controller", "thermostat", []*Property{temp, mode})
	return NewDevice("tub", "Tub", []*Node{node}), node, temp
}

func TestDevice_ConnectAnnouncesTree(t *testing.T) {
	d, _, _ := testDevice()
	client := newFakeMQTT()

	if err := d.Connect(client); err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		"homie/tub/$homie":                           "4.0.0",
		"homie/tub/$name":                            "Tub",
		"homie/tub/$nodes":                           "controller",
		"homie/tub/$state":                           "ready",
		"homie/tub/controller/$name":                 "Controller",
		"homie/tub/controller/$type":                 "thermostat",
		"homie/tub/controller/$properties":           "temperature,mode",
		"homie/tub/controller/temperature/$datatype": "float",
		"homie/tub/controller/temperature/$unit":     "°C",
		"homie/tub/controller/mode/$format":          "auto,manual",
		"homie/tub/controller/mode/$settable":        "true",
	}
	for topic, payload := range want {
		if got, ok := client.value(topic); !ok || got != payload {
			t.Errorf("%s = %q, %v, want %q", topic, got, ok, payload)
		}
	}

	// $state passes through init before ready.
	client.mu.Lock()
	states := client.history["homie/tub/$state"]
	client.mu.Unlock()
	if len(states) != 2 || states[0] != StateInit || states[1] != StateReady {
		t.Errorf("$state history = %v, want [init ready]", states)
	}

	if _, ok := client.handlers["homie/tub/controller/mode/set"]; !ok {
		t.Error("settable property has no /set subscription")
	}
	if _, ok := client.handlers["homie/tub/controller/temperature/set"]; ok {
		t.Error("read-only property has a /set subscription")
	}
}

func TestDevice_Will(t *testing.T) {
	d, _, _ := testDevice()
	topic, payload := d.Will()
	if topic != "homie/tub/$state" || payload != StateLost {
		t.Errorf("Will() = %q, %q", topic, payload)
	}
}

func TestDevice_BaseTopicOverride(t *testing.T) {
	d, _, _ := testDevice()
	d.SetBaseTopic("site/pool/")
	if d.Topic() != "site/pool/tub" {
		t.Errorf("Topic() = %q, want site/pool/tub", d.Topic())
	}
}

func TestProperty_SetDeduplicates(t *testing.T) {
	d, _, temp := testDevice()
	client := newFakeMQTT()
	if err := d.Connect(client); err != nil {
		t.Fatal(err)
	}

	topic := "homie/tub/controller/temperature"
	temp.Set("38.5")
	temp.Set("38.5")
	if n := client.publishCount(topic); n != 1 {
		t.Errorf("publish count after duplicate Set = %d, want 1", n)
	}

	temp.Set("39.0")
	if got, _ := client.value(topic); got != "39.0" {
		t.Errorf("value = %q, want 39.0", got)
	}
	if n := client.publishCount(topic); n != 2 {
		t.Errorf("publish count = %d, want 2", n)
	}
}

func TestProperty_SetHandler(t *testing.T) {
	d, node, _ := testDevice()
	var got string
	node.Property("mode").OnSet = func(payload string) { got = payload }

	client := newFakeMQTT()
	if err := d.Connect(client); err != nil {
		t.Fatal(err)
	}

	client.deliverSet(t, "homie/tub/controller/mode/set", "manual")
	if got != "manual" {
		t.Errorf("OnSet payload = %q, want manual", got)
	}
}

func TestDevice_Disconnect(t *testing.T) {
	d, _, _ := testDevice()
	client := newFakeMQTT()
	if err := d.Connect(client); err != nil {
		t.Fatal(err)
	}
	d.Disconnect()
	if got, _ := client.value("homie/tub/$state"); got != StateDisconnected {
		t.Errorf("$state = %q, want disconnected", got)
	}
}
