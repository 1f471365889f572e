package mesh

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
)

// ChannelService implements channel management on the device slot table.
// Every write follows the same shape: acquire the gate, open a session, do
// the slot work plus a verification rescan, close and release, and only
// then reseed the cache. The cache is never touched while the gate is held.
type ChannelService struct {
	gate      *Gate
	connector Connector
	profile   Profile
	cache     *SlotCache
	log       *logging.Logger
}

// NewChannelService creates a channel service.
func NewChannelService(gate *Gate, connector Connector, profile Profile, cache *SlotCache, log *logging.Logger) *ChannelService {
	return &ChannelService{
		gate:      gate,
		connector: connector,
		profile:   profile,
		cache:     cache,
		log:       log.With("component", "channels"),
	}
}

// List returns the configured channel slots, serving from cache when warm.
func (s *ChannelService) List(ctx context.Context) ([]ChannelSlot, error) {
	return s.cache.Refresh(ctx, s.scan)
}

// CacheState reports the slot cache state for health reporting.
func (s *ChannelService) CacheState() (warm bool, ageSeconds float64) {
	warm, age := s.cache.State()
	return warm, age.Seconds()
}

// scan performs a full device scan of the slot table.
func (s *ChannelService) scan(ctx context.Context) ([]ChannelSlot, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	sess, err := OpenSession(ctx, s.connector, s.profile, s.log)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return sess.ScanChannels(ctx)
}

// Create adds a channel named name to the first free slot, deriving its
// shared secret from the name. It returns the post-write slot table.
//
// The duplicate check compares names case-insensitively against every
// occupied slot. After the slot write is acknowledged the table is
// rescanned under the same gate hold, and that rescan reseeds the cache
// once the gate is released.
func (s *ChannelService) Create(ctx context.Context, name string) ([]ChannelSlot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	fresh, err := s.withDevice(ctx, func(ctx context.Context, sess *Session) error {
		freeSlot := -1
		for idx := 0; idx < MaxChannelSlots; idx++ {
			slot, err := sess.Channel(ctx, idx)
			if errors.Is(err, ErrRejected) {
				break
			}
			if err != nil {
				return fmt.Errorf("scanning slot %d: %w", idx, err)
			}
			if slot.Empty() {
				if freeSlot < 0 {
					freeSlot = idx
				}
				continue
			}
			if strings.EqualFold(slot.Name, name) {
				return fmt.Errorf("%w: %q in slot %d", ErrChannelExists, slot.Name, idx)
			}
		}
		if freeSlot < 0 {
			return ErrNoFreeSlot
		}

		slot := ChannelSlot{
			Index:  freeSlot,
			Name:   name,
			Secret: DeriveChannelSecret(name),
		}
		if err := sess.SetChannel(ctx, slot); err != nil {
			return err
		}
		s.log.Info("channel created", "name", name, "slot", freeSlot)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// Delete clears the slot holding the named channel by writing an empty name
// and zero secret over it. It returns the post-write slot table.
func (s *ChannelService) Delete(ctx context.Context, name string) ([]ChannelSlot, error) {
	want := strings.TrimPrefix(strings.TrimSpace(name), "#")
	if want == "" {
		return nil, ErrEmptyName
	}

	fresh, err := s.withDevice(ctx, func(ctx context.Context, sess *Session) error {
		slots, err := sess.ScanChannels(ctx)
		if err != nil {
			return err
		}
		target := -1
		for _, slot := range slots {
			if strings.EqualFold(slot.Name, want) {
				target = slot.Index
				break
			}
		}
		if target < 0 {
			return fmt.Errorf("%w: %q", ErrChannelNotFound, name)
		}

		if err := sess.SetChannel(ctx, ChannelSlot{Index: target}); err != nil {
			return err
		}
		s.log.Info("channel deleted", "name", want, "slot", target)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// SendText transmits text on the named channel and returns the slot it was
// sent on. The slot table is not modified, so the cache is left alone.
func (s *ChannelService) SendText(ctx context.Context, channelName, text string) (ChannelSlot, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return ChannelSlot{}, err
	}
	defer s.gate.Release()

	sess, err := OpenSession(ctx, s.connector, s.profile, s.log)
	if err != nil {
		return ChannelSlot{}, err
	}
	defer sess.Close()

	slot, err := sess.ResolveChannel(ctx, channelName)
	if err != nil {
		return ChannelSlot{}, err
	}
	if err := sess.SendChannelMessage(ctx, slot.Index, text); err != nil {
		return ChannelSlot{}, fmt.Errorf("sending on slot %d: %w", slot.Index, err)
	}
	return slot, nil
}

// withDevice runs op and a verification rescan inside one gate hold and one
// session, then reseeds the cache after the gate is released. On any error
// the cache is invalidated instead, since the device state is unknown.
func (s *ChannelService) withDevice(ctx context.Context, op func(ctx context.Context, sess *Session) error) ([]ChannelSlot, error) {
	fresh, err := func() ([]ChannelSlot, error) {
		if err := s.gate.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.gate.Release()

		sess, err := OpenSession(ctx, s.connector, s.profile, s.log)
		if err != nil {
			return nil, err
		}
		defer sess.Close()

		if err := op(ctx, sess); err != nil {
			return nil, err
		}
		return sess.ScanChannels(ctx)
	}()

	if err != nil {
		s.cache.Invalidate()
		return nil, err
	}

	s.cache.Invalidate()
	s.cache.Set(fresh)
	return fresh, nil
}
