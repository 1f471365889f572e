package mesh

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
)

// Profile describes how to reach the companion device. It is built from
// configuration once at startup and passed to the driver on every connect.
type Profile struct {
	Driver    string
	Transport string // ble | serial | tcp

	BLEAddress string
	BLEPIN     string

	SerialPort string
	SerialBaud int

	TCPHost string
	TCPPort int

	Debug bool
}

// ProfileFromConfig builds a connection profile from device configuration.
func ProfileFromConfig(cfg config.DeviceConfig) Profile {
	return Profile{
		Driver:     cfg.Driver,
		Transport:  cfg.Transport,
		BLEAddress: cfg.BLE.Address,
		BLEPIN:     cfg.BLE.PIN,
		SerialPort: cfg.Serial.Port,
		SerialBaud: cfg.Serial.Baudrate,
		TCPHost:    cfg.TCP.Host,
		TCPPort:    cfg.TCP.Port,
		Debug:      cfg.Debug,
	}
}

// Conn is a live connection to the companion device. Implementations are
// NOT safe for concurrent use; callers serialise access through a Gate.
//
// Methods that wait on the device honour ctx for cancellation. Errors are
// reported through the package sentinel errors (possibly wrapped) so callers
// can classify failures without knowing the driver.
type Conn interface {
	// AppStart performs the session handshake and returns device identity.
	AppStart(ctx context.Context) (DeviceInfo, error)

	// Channel reads one slot from the channel table. Indices past the end
	// of the table return ErrRejected.
	Channel(ctx context.Context, index int) (ChannelSlot, error)

	// SetChannel writes one slot and waits for the device acknowledgment.
	SetChannel(ctx context.Context, slot ChannelSlot) error

	// Contacts returns the device contact list.
	Contacts(ctx context.Context) ([]Contact, error)

	// SendChannelMessage transmits a text message on a channel slot and
	// waits for the device to confirm it was queued for transmission.
	SendChannelMessage(ctx context.Context, index int, text string) error

	// SyncNextMessage pops one message from the device receive queue.
	// Returns ErrNoMoreMessages when the queue is empty.
	SyncNextMessage(ctx context.Context) (RawMessage, error)

	// Login authenticates against a remote node (repeater or room server)
	// with its admin password.
	Login(ctx context.Context, contact Contact, password string) error

	// StatusRequest asks a remote node for its status report.
	StatusRequest(ctx context.Context, contact Contact) (Status, error)

	// TelemetryRequest asks a remote node for its sensor telemetry.
	TelemetryRequest(ctx context.Context, contact Contact) ([]TelemetryEntry, error)

	// Disconnect tears down the link. Safe to call more than once.
	Disconnect()
}

// Connector opens connections to the companion device over a specific
// transport stack.
type Connector interface {
	Connect(ctx context.Context, profile Profile) (Conn, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Connector)
)

// Register makes a device driver available under the given name. It is
// intended to be called from driver package init functions.
func Register(name string, connector Connector) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if connector == nil {
		panic("mesh: Register connector is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("mesh: Register called twice for driver " + name)
	}
	drivers[name] = connector
}

// Driver returns the Connector registered under name.
func Driver(name string) (Connector, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	connector, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, name, driverNamesLocked())
	}
	return connector, nil
}

func driverNamesLocked() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
