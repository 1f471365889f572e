package mesh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
)

// Per-operation deadlines. The device is a slow serial peer: each command
// gets its own budget rather than one deadline for the whole session.
const (
	connectTimeout = 15 * time.Second
	appNameTimeout = 10 * time.Second
	slotTimeout    = 5 * time.Second
	drainTimeout   = 3 * time.Second
	sendTimeout    = 10 * time.Second
	statusTimeout  = 15 * time.Second
	sensorTimeout  = 20 * time.Second

	// retryPause separates retried remote-node requests so the radio can
	// settle between attempts.
	retryPause = 2 * time.Second
)

// Session is a typed view over one device connection. It owns the Conn for
// its lifetime and applies per-operation timeouts. Callers must hold the
// Gate for the full session.
type Session struct {
	conn Conn
	log  *logging.Logger

	closeOnce sync.Once
}

// OpenSession connects to the device through the given driver and wraps the
// connection. Connection failures are reported as ErrConnectionFailed.
func OpenSession(ctx context.Context, connector Connector, profile Profile, log *logging.Logger) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := connector.Connect(ctx, profile)
	if err != nil {
		if errors.Is(err, ErrConnectionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return &Session{conn: conn, log: log}, nil
}

// Close disconnects from the device. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.conn.Disconnect()
	})
}

// AppStart performs the session handshake.
func (s *Session) AppStart(ctx context.Context) (DeviceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, appNameTimeout)
	defer cancel()
	return s.conn.AppStart(ctx)
}

// Channel reads one slot from the device channel table.
func (s *Session) Channel(ctx context.Context, index int) (ChannelSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, slotTimeout)
	defer cancel()
	return s.conn.Channel(ctx, index)
}

// SetChannel writes one slot. ErrNoResponse and ErrRejected both surface as
// ErrNotAcked: either way the device never confirmed the write.
func (s *Session) SetChannel(ctx context.Context, slot ChannelSlot) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.conn.SetChannel(ctx, slot); err != nil {
		if errors.Is(err, ErrNoResponse) || errors.Is(err, ErrRejected) || errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%w: slot %d: %w", ErrNotAcked, slot.Index, err)
		}
		return fmt.Errorf("writing slot %d: %w", slot.Index, err)
	}
	return nil
}

// ScanChannels walks the slot table and returns the configured slots in
// index order. Empty slots are skipped; an ErrRejected response marks the
// end of the table on firmware with fewer than MaxChannelSlots slots.
func (s *Session) ScanChannels(ctx context.Context) ([]ChannelSlot, error) {
	var slots []ChannelSlot
	for idx := 0; idx < MaxChannelSlots; idx++ {
		slot, err := s.Channel(ctx, idx)
		if errors.Is(err, ErrRejected) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scanning slot %d: %w", idx, err)
		}
		if slot.Empty() {
			continue
		}
		slot.Index = idx
		slots = append(slots, slot)
	}
	return slots, nil
}

// ResolveChannel finds the configured slot whose name matches, comparing
// case-insensitively and ignoring a leading '#'.
func (s *Session) ResolveChannel(ctx context.Context, name string) (ChannelSlot, error) {
	want := strings.TrimPrefix(strings.TrimSpace(name), "#")
	slots, err := s.ScanChannels(ctx)
	if err != nil {
		return ChannelSlot{}, err
	}
	for _, slot := range slots {
		if strings.EqualFold(slot.Name, want) {
			return slot, nil
		}
	}
	return ChannelSlot{}, fmt.Errorf("%w: %q", ErrChannelNotFound, name)
}

// SendChannelMessage transmits text on the given slot.
func (s *Session) SendChannelMessage(ctx context.Context, index int, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.conn.SendChannelMessage(ctx, index, text)
}

// SyncNextMessage pops one message from the device receive queue.
func (s *Session) SyncNextMessage(ctx context.Context) (RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	return s.conn.SyncNextMessage(ctx)
}

// Contacts returns the device contact list.
func (s *Session) Contacts(ctx context.Context) ([]Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, slotTimeout)
	defer cancel()
	return s.conn.Contacts(ctx)
}

// FindContactByName finds the first contact whose name contains the query,
// case-insensitively.
func (s *Session) FindContactByName(ctx context.Context, name string) (Contact, error) {
	contacts, err := s.Contacts(ctx)
	if err != nil {
		return Contact{}, err
	}
	want := strings.ToLower(name)
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.Name), want) {
			return c, nil
		}
	}
	return Contact{}, fmt.Errorf("%w: name %q", ErrContactNotFound, name)
}

// FindContactByKey finds the contact whose public key starts with the given
// hex prefix, case-insensitively.
func (s *Session) FindContactByKey(ctx context.Context, publicKey string) (Contact, error) {
	contacts, err := s.Contacts(ctx)
	if err != nil {
		return Contact{}, err
	}
	want := strings.ToLower(publicKey)
	for _, c := range contacts {
		key := strings.ToLower(c.PublicKey)
		if strings.HasPrefix(key, want) || strings.HasPrefix(want, key) {
			return c, nil
		}
	}
	return Contact{}, fmt.Errorf("%w: key %.12s", ErrContactNotFound, publicKey)
}

// Status logs in to a remote node and requests its status report, retrying
// transient failures up to retries additional attempts.
func (s *Session) Status(ctx context.Context, contact Contact, password string, retries int) (Status, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryPause); err != nil {
				return Status{}, err
			}
			s.log.Debug("retrying status request",
				"contact", contact.Name,
				"attempt", attempt+1,
			)
		}
		st, err := s.statusOnce(ctx, contact, password)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}
	}
	return Status{}, lastErr
}

func (s *Session) statusOnce(ctx context.Context, contact Contact, password string) (Status, error) {
	opCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	if err := s.conn.Login(opCtx, contact, password); err != nil {
		return Status{}, fmt.Errorf("logging in to %q: %w", contact.Name, err)
	}
	st, err := s.conn.StatusRequest(opCtx, contact)
	if err != nil {
		return Status{}, fmt.Errorf("requesting status from %q: %w", contact.Name, err)
	}
	return st, nil
}

// SensorTelemetry requests sensor readings from a remote node, retrying the
// same way Status does. The longer deadline allows slow sensor buses on the
// remote end.
func (s *Session) SensorTelemetry(ctx context.Context, contact Contact, retries int) ([]TelemetryEntry, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryPause); err != nil {
				return nil, err
			}
		}
		opCtx, cancel := context.WithTimeout(ctx, sensorTimeout)
		entries, err := s.conn.TelemetryRequest(opCtx, contact)
		cancel()
		if err == nil {
			return entries, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("requesting telemetry from %q: %w", contact.Name, lastErr)
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
