package mesh

import (
	"encoding/hex"
	"strings"
)

// SecretSize is the length in bytes of a channel shared secret.
const SecretSize = 16

// MaxChannelSlots is the number of channel slots the device firmware
// exposes. Slot indices run 0..MaxChannelSlots-1.
const MaxChannelSlots = 8

// ContactKeyPrefixLen is the number of hex characters of a contact public
// key used as its short identity. Inbound messages carry only this prefix.
const ContactKeyPrefixLen = 12

// MessageKind classifies an inbound message.
type MessageKind string

const (
	// KindChannel is a message received on a shared channel.
	KindChannel MessageKind = "CHANNEL"

	// KindDirect is a message addressed directly to this node.
	KindDirect MessageKind = "DIRECT"
)

// ChannelSlot is one entry in the device channel table.
type ChannelSlot struct {
	Index  int
	Name   string
	Secret [SecretSize]byte
}

// Empty reports whether the slot is unconfigured: no name and an all-zero
// secret. A slot with either field set is considered occupied.
func (s ChannelSlot) Empty() bool {
	return s.Name == "" && s.Secret == [SecretSize]byte{}
}

// SecretHex returns the shared secret as lowercase hex.
func (s ChannelSlot) SecretHex() string {
	return hex.EncodeToString(s.Secret[:])
}

// Contact is one entry in the device contact list.
type Contact struct {
	Name      string
	PublicKey string
	Type      int
	LastSeen  int64
}

// KeyPrefix returns the short identity for this contact: the first
// ContactKeyPrefixLen hex characters of its public key, lowercased.
func (c Contact) KeyPrefix() string {
	key := strings.ToLower(c.PublicKey)
	if len(key) > ContactKeyPrefixLen {
		key = key[:ContactKeyPrefixLen]
	}
	return key
}

// RawMessage is a message as drained from the device queue, before
// sender/body splitting and persistence.
type RawMessage struct {
	Kind            MessageKind
	ChannelIndex    int
	Text            string
	SenderTimestamp int64
	PubKeyPrefix    string
	PathLen         int
	SNR             float64
	TextType        int
	Signature       string
}

// Status is a remote node status report, typically from a repeater after a
// password login.
type Status struct {
	BatteryMilliVolts int
	UptimeSeconds     int64
	AirtimeSeconds    int64
	NoiseFloor        float64
	LastRSSI          float64
	LastSNR           float64
	SentFlood         int
	SentDirect        int
	RecvFlood         int
	RecvDirect        int
	TxQueueLen        int
	FreeQueueLen      int
	FullEvents        int
	DirectDups        int
	FloodDups         int
}

// BatteryVolts converts the raw millivolt reading to volts.
func (s Status) BatteryVolts() float64 {
	return float64(s.BatteryMilliVolts) / 1000
}

// Battery percentage is a linear interpolation over the usable LiPo range.
const (
	batteryEmptyMilliVolts = 3200
	batteryFullMilliVolts  = 4200
)

// BatteryPercentage estimates state of charge from a millivolt reading,
// clamped to 0..100.
func BatteryPercentage(milliVolts int) float64 {
	pct := float64(milliVolts-batteryEmptyMilliVolts) /
		float64(batteryFullMilliVolts-batteryEmptyMilliVolts) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// TelemetryEntry is one sensor reading from a remote node telemetry
// response (Cayenne LPP style channel/type/value triples).
type TelemetryEntry struct {
	Channel int
	Type    string
	Value   float64
}

// DeviceInfo describes the connected companion device.
type DeviceInfo struct {
	Name            string
	FirmwareVersion string
	PublicKey       string
}
