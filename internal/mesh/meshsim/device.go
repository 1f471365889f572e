package meshsim

import (
	"context"
	"fmt"
	"sync"

	"github.com/nmoncrief/meshgate/internal/mesh"
)

// defaultDevice backs the "sim" driver name. Deployments that select the
// sim driver all connect to this instance; tests construct their own.
var defaultDevice = NewDevice()

func init() {
	mesh.Register("sim", defaultDevice)
}

// Default returns the Device behind the registered "sim" driver, so startup
// code can seed it with channels and contacts.
func Default() *Device {
	return defaultDevice
}

// Device is a simulated companion device. One Device holds the radio state;
// Connect hands out connections against it. The device enforces the real
// hardware's single-link constraint: a second Connect while a connection is
// open fails with ErrConnectionFailed.
//
// All exported methods are safe for concurrent use. The zero-value maps are
// initialised by NewDevice.
type Device struct {
	mu sync.Mutex

	name      string
	slots     [mesh.MaxChannelSlots]mesh.ChannelSlot
	contacts  []mesh.Contact
	queue     []mesh.RawMessage
	statuses  map[string]mesh.Status         // keyed by contact key prefix
	telemetry map[string][]mesh.TelemetryEntry
	passwords map[string]string

	connected  bool
	connectErr error // injected failure for the next Connect
	connects   int
	sent       []SentMessage
}

// SentMessage records one outbound transmission for inspection.
type SentMessage struct {
	ChannelIndex int
	Text         string
}

// NewDevice creates an empty simulated device.
func NewDevice() *Device {
	return &Device{
		name:      "meshgate-sim",
		statuses:  make(map[string]mesh.Status),
		telemetry: make(map[string][]mesh.TelemetryEntry),
		passwords: make(map[string]string),
	}
}

// Connect implements mesh.Connector.
func (d *Device) Connect(ctx context.Context, _ mesh.Profile) (mesh.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", mesh.ErrConnectionFailed, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.connects++
	if d.connectErr != nil {
		err := d.connectErr
		d.connectErr = nil
		return nil, err
	}
	if d.connected {
		return nil, fmt.Errorf("%w: link already in use", mesh.ErrConnectionFailed)
	}
	d.connected = true
	return &conn{device: d}, nil
}

// SetName sets the simulated device name returned by AppStart.
func (d *Device) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.name = name
}

// SetSlot seeds one channel slot.
func (d *Device) SetSlot(slot mesh.ChannelSlot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot.Index >= 0 && slot.Index < mesh.MaxChannelSlots {
		d.slots[slot.Index] = slot
		d.slots[slot.Index].Index = slot.Index
	}
}

// Slot returns the current contents of one channel slot.
func (d *Device) Slot(index int) mesh.ChannelSlot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[index]
}

// AddContact seeds one contact, with an optional admin password for
// Login calls against it.
func (d *Device) AddContact(c mesh.Contact, password string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts = append(d.contacts, c)
	if password != "" {
		d.passwords[c.KeyPrefix()] = password
	}
}

// SetStatus seeds the status report a contact answers with.
func (d *Device) SetStatus(c mesh.Contact, st mesh.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[c.KeyPrefix()] = st
}

// SetTelemetry seeds the sensor telemetry a contact answers with.
func (d *Device) SetTelemetry(c mesh.Contact, entries []mesh.TelemetryEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.telemetry[c.KeyPrefix()] = entries
}

// QueueMessage appends a message to the receive queue.
func (d *Device) QueueMessage(msg mesh.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, msg)
}

// FailNextConnect makes the next Connect return err.
func (d *Device) FailNextConnect(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// Connects returns how many Connect calls the device has seen.
func (d *Device) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Sent returns all transmissions the device has queued for air.
func (d *Device) Sent() []SentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

// conn is one open link against a Device.
type conn struct {
	device *Device

	mu     sync.Mutex
	closed bool
}

func (c *conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", mesh.ErrTimeout, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connection closed", mesh.ErrConnectionFailed)
	}
	return nil
}

func (c *conn) AppStart(ctx context.Context) (mesh.DeviceInfo, error) {
	if err := c.check(ctx); err != nil {
		return mesh.DeviceInfo{}, err
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	return mesh.DeviceInfo{Name: c.device.name, FirmwareVersion: "sim"}, nil
}

func (c *conn) Channel(ctx context.Context, index int) (mesh.ChannelSlot, error) {
	if err := c.check(ctx); err != nil {
		return mesh.ChannelSlot{}, err
	}
	if index < 0 || index >= mesh.MaxChannelSlots {
		return mesh.ChannelSlot{}, fmt.Errorf("%w: slot %d", mesh.ErrRejected, index)
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	slot := c.device.slots[index]
	slot.Index = index
	return slot, nil
}

func (c *conn) SetChannel(ctx context.Context, slot mesh.ChannelSlot) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if slot.Index < 0 || slot.Index >= mesh.MaxChannelSlots {
		return fmt.Errorf("%w: slot %d", mesh.ErrRejected, slot.Index)
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.device.slots[slot.Index] = slot
	return nil
}

func (c *conn) Contacts(ctx context.Context) ([]mesh.Contact, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	out := make([]mesh.Contact, len(c.device.contacts))
	copy(out, c.device.contacts)
	return out, nil
}

func (c *conn) SendChannelMessage(ctx context.Context, index int, text string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if c.device.slots[index].Empty() {
		return fmt.Errorf("%w: slot %d not configured", mesh.ErrRejected, index)
	}
	c.device.sent = append(c.device.sent, SentMessage{ChannelIndex: index, Text: text})
	return nil
}

func (c *conn) SyncNextMessage(ctx context.Context) (mesh.RawMessage, error) {
	if err := c.check(ctx); err != nil {
		return mesh.RawMessage{}, err
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if len(c.device.queue) == 0 {
		return mesh.RawMessage{}, mesh.ErrNoMoreMessages
	}
	msg := c.device.queue[0]
	c.device.queue = c.device.queue[1:]
	return msg, nil
}

func (c *conn) Login(ctx context.Context, contact mesh.Contact, password string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	want, ok := c.device.passwords[contact.KeyPrefix()]
	if !ok {
		return fmt.Errorf("%w: %q unreachable", mesh.ErrTimeout, contact.Name)
	}
	if want != password {
		return fmt.Errorf("%w: login denied for %q", mesh.ErrRejected, contact.Name)
	}
	return nil
}

func (c *conn) StatusRequest(ctx context.Context, contact mesh.Contact) (mesh.Status, error) {
	if err := c.check(ctx); err != nil {
		return mesh.Status{}, err
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	st, ok := c.device.statuses[contact.KeyPrefix()]
	if !ok {
		return mesh.Status{}, fmt.Errorf("%w: no status from %q", mesh.ErrNoResponse, contact.Name)
	}
	return st, nil
}

func (c *conn) TelemetryRequest(ctx context.Context, contact mesh.Contact) ([]mesh.TelemetryEntry, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	entries, ok := c.device.telemetry[contact.KeyPrefix()]
	if !ok {
		return nil, fmt.Errorf("%w: no telemetry from %q", mesh.ErrNoResponse, contact.Name)
	}
	out := make([]mesh.TelemetryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (c *conn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.device.mu.Lock()
	c.device.connected = false
	c.device.mu.Unlock()
}
