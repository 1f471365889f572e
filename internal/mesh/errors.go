package mesh

import "errors"

// Device-level errors. Drivers map their transport failures onto these so
// callers can translate them to API responses without knowing the transport.
var (
	// ErrConnectionFailed indicates the transport link could not be
	// established (device unreachable, port busy, BLE pairing failed).
	ErrConnectionFailed = errors.New("mesh: connection failed")

	// ErrRejected indicates the device answered a command with an error
	// frame. During a channel scan this marks the end of the slot table.
	ErrRejected = errors.New("mesh: command rejected by device")

	// ErrTimeout indicates the device did not answer within the
	// per-operation deadline.
	ErrTimeout = errors.New("mesh: device timed out")

	// ErrNoResponse indicates a command that requires an acknowledgment
	// completed without one.
	ErrNoResponse = errors.New("mesh: no response from device")

	// ErrNoMoreMessages indicates the device message queue is empty.
	ErrNoMoreMessages = errors.New("mesh: no more messages")
)

// Channel operation errors.
var (
	// ErrEmptyName indicates a channel name that is blank after trimming.
	ErrEmptyName = errors.New("mesh: channel name is empty")

	// ErrChannelExists indicates a channel with the same name (compared
	// case-insensitively) already occupies a slot.
	ErrChannelExists = errors.New("mesh: channel already exists")

	// ErrChannelNotFound indicates no configured slot matches the name.
	ErrChannelNotFound = errors.New("mesh: channel not found")

	// ErrNoFreeSlot indicates all channel slots are occupied.
	ErrNoFreeSlot = errors.New("mesh: no free channel slot")

	// ErrNotAcked indicates the device did not acknowledge a slot write.
	// The slot state on the device is unknown.
	ErrNotAcked = errors.New("mesh: channel write not acknowledged")

	// ErrContactNotFound indicates no contact in the device contact list
	// matches the requested name or public key.
	ErrContactNotFound = errors.New("mesh: contact not found")

	// ErrUnknownDriver indicates no Connector is registered under the
	// configured driver name.
	ErrUnknownDriver = errors.New("mesh: unknown driver")
)
