// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

// Package homie publishes a device over MQTT following the Homie 4.0
// convention (homie.iot): a device owns nodes, nodes own properties, and
// every attribute and value lives on its own retained topic. Settable
// properties additionally subscribe to their /set topic and hand inbound
// payloads to a callback.
//
// Only the subset of the convention the spa bridge needs is implemented;
// arrays and extensions are not.
package homie

import (
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	homieVersion = "4.0.0"

	// BaseTopic is the conventional root of the Homie topic tree.
	BaseTopic = "homie"
)

// Device lifecycle states published on $state.
const (
	StateInit         = "init"
	StateReady        = "ready"
	StateDisconnected = "disconnected"
	StateLost         = "lost"
)

// Property is one value topic under a node. Settable properties receive
// inbound /set payloads through OnSet; the bridge decides what a payload
// means, the property only carries it.
type Property struct {
	ID       string
	Name     string
	DataType string // string, integer, float, boolean, enum, datetime
	Format   string // enum values or numeric range, optional
	Unit     string
	Settable bool
	OnSet    func(payload string)

	node *Node

	mu        sync.Mutex
	value     string
	hasValue  bool
	published bool
}

// NewProperty builds a read-only property.
func NewProperty(id, name, dataType string) *Property {
	return &Property{ID: id, Name: name, DataType: dataType}
}

// Node groups related properties under a device.
type Node struct {
	ID         string
	Name       string
	Type       string
	Properties []*Property

	device *Device
}

// NewNode builds a node owning the given properties.
func NewNode(id, name, nodeType string, properties []*Property) *Node {
	return &Node{ID: id, Name: name, Type: nodeType, Properties: properties}
}

// Property returns the property with the given id, or nil.
func (n *Node) Property(id string) *Property {
	for _, p := range n.Properties {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Device is the root of one Homie topic subtree.
type Device struct {
	ID    string
	Name  string
	Nodes []*Node

	base   string
	client mqtt.Client
	log    *log.Entry

	mu        sync.Mutex
	connected bool
}

// NewDevice builds a device owning the given nodes under the conventional
// base topic.
func NewDevice(id, name string, nodes []*Node) *Device {
	d := &Device{
		ID:    id,
		Name:  name,
		Nodes: nodes,
		base:  BaseTopic,
		log:   log.WithField("component", "homie").WithField("device", id),
	}
	for _, n := range nodes {
		n.device = d
		for _, p := range n.Properties {
			p.node = n
		}
	}
	return d
}

// SetBaseTopic overrides the topic root, for brokers with namespacing.
func (d *Device) SetBaseTopic(base string) {
	d.base = strings.TrimSuffix(base, "/")
}

// Topic returns the device's root topic.
func (d *Device) Topic() string {
	return d.base + "/" + d.ID
}

// Will returns the topic and payload the broker should publish if the
// connection drops, per the convention's last-will requirement. Pass these
// to the MQTT client options before connecting.
func (d *Device) Will() (topic, payload string) {
	return d.Topic() + "/$state", StateLost
}

// Connect publishes the full attribute tree on client, subscribes the
// settable properties, and announces $state ready. The client must already
// be connected.
func (d *Device) Connect(client mqtt.Client) error {
	d.mu.Lock()
	d.client = client
	d.connected = true
	d.mu.Unlock()

	root := d.Topic()
	if err := d.publish(root+"/$state", StateInit); err != nil {
		return err
	}
	d.publish(root+"/$homie", homieVersion)
	d.publish(root+"/$name", d.Name)

	nodeIDs := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		nodeIDs[i] = n.ID
	}
	d.publish(root+"/$nodes", strings.Join(nodeIDs, ","))

	for _, n := range d.Nodes {
		d.announceNode(n)
	}
	for _, n := range d.Nodes {
		for _, p := range n.Properties {
			if p.Settable {
				if err := d.subscribeSet(n, p); err != nil {
					return err
				}
			}
		}
	}

	return d.publish(root+"/$state", StateReady)
}

// Disconnect announces a clean shutdown. The MQTT connection itself is the
// caller's to close.
func (d *Device) Disconnect() {
	d.mu.Lock()
	connected := d.connected
	d.connected = false
	d.mu.Unlock()
	if connected {
		d.publish(d.Topic()+"/$state", StateDisconnected)
	}
}

func (d *Device) announceNode(n *Node) {
	nt := d.Topic() + "/" + n.ID
	d.publish(nt+"/$name", n.Name)
	d.publish(nt+"/$type", n.Type)

	ids := make([]string, len(n.Properties))
	for i, p := range n.Properties {
		ids[i] = p.ID
	}
	d.publish(nt+"/$properties", strings.Join(ids, ","))

	for _, p := range n.Properties {
		pt := nt + "/" + p.ID
		d.publish(pt+"/$name", p.Name)
		d.publish(pt+"/$datatype", p.DataType)
		if p.Format != "" {
			d.publish(pt+"/$format", p.Format)
		}
		if p.Unit != "" {
			d.publish(pt+"/$unit", p.Unit)
		}
		if p.Settable {
			d.publish(pt+"/$settable", "true")
		}
	}
}

func (d *Device) subscribeSet(n *Node, p *Property) error {
	topic := d.Topic() + "/" + n.ID + "/" + p.ID + "/set"
	token := d.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		payload := string(msg.Payload())
		d.log.WithField("property", p.ID).WithField("payload", payload).Debug("set received")
		if p.OnSet != nil {
			p.OnSet(payload)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("homie: subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// publish sends one retained attribute or value topic. Failures are logged
// and returned; the retained tree self-heals on the next publish.
func (d *Device) publish(topic, payload string) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return fmt.Errorf("homie: device %s not connected", d.ID)
	}
	token := client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		d.log.WithError(token.Error()).WithField("topic", topic).Warn("publish failed")
		return token.Error()
	}
	return nil
}

// Set publishes a new value for the property, deduplicating repeats. The
// first Set after Connect always publishes so the retained topic is fresh.
func (p *Property) Set(value string) {
	p.mu.Lock()
	if p.published && p.value == value {
		p.mu.Unlock()
		return
	}
	p.value = value
	p.hasValue = true
	p.published = true
	node := p.node
	p.mu.Unlock()

	if node == nil || node.device == nil {
		return
	}
	node.device.publish(node.device.Topic()+"/"+node.ID+"/"+p.ID, value)
}

// Value returns the last value passed to Set.
func (p *Property) Value() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.hasValue
}
