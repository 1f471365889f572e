package workers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nmoncrief/meshgate/internal/events"
	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
	"github.com/nmoncrief/meshgate/internal/mesh"
	"github.com/nmoncrief/meshgate/internal/store"
)

// maxDrainPerCycle caps how many messages one cycle pulls so a large
// backlog cannot hold the device gate indefinitely.
const maxDrainPerCycle = 200

// broadcaster is the slice of the event bus the drainer needs.
type broadcaster interface {
	Publish(events.Message) bool
}

// Drainer empties the device receive queue into the message log and
// publishes each persisted message to the event bus.
type Drainer struct {
	gate      *mesh.Gate
	connector mesh.Connector
	profile   mesh.Profile
	messages  store.MessageStore
	bus       broadcaster
	log       *logging.Logger

	interval    time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration

	now func() time.Time
}

// NewDrainer creates a message drainer.
func NewDrainer(
	gate *mesh.Gate,
	connector mesh.Connector,
	profile mesh.Profile,
	messages store.MessageStore,
	bus broadcaster,
	cfg config.WorkersConfig,
	log *logging.Logger,
) *Drainer {
	return &Drainer{
		gate:        gate,
		connector:   connector,
		profile:     profile,
		messages:    messages,
		bus:         bus,
		log:         log.With("component", "message_drainer"),
		interval:    time.Duration(cfg.MessagePollInterval) * time.Second,
		backoffBase: time.Duration(cfg.BackoffBase) * time.Second,
		backoffMax:  time.Duration(cfg.BackoffMax) * time.Second,
		now:         time.Now,
	}
}

// Run drains in a loop until ctx is done. Cycle failures double the sleep
// up to the backoff ceiling; a clean cycle resets it.
func (d *Drainer) Run(ctx context.Context) {
	d.log.Info("message drainer started", "interval", d.interval.String())

	backoff := d.backoffBase
	for {
		count, err := d.DrainOnce(ctx)
		if ctx.Err() != nil {
			d.log.Info("message drainer stopped")
			return
		}

		sleep := d.interval
		if err != nil {
			d.log.Warn("drain cycle failed",
				"error", err,
				"retry_in", backoff.String(),
			)
			sleep = backoff
			backoff *= 2
			if backoff > d.backoffMax {
				backoff = d.backoffMax
			}
		} else {
			backoff = d.backoffBase
			if count > 0 {
				d.log.Info("drained messages", "count", count)
			}
		}

		if sleepErr := sleepCtx(ctx, sleep); sleepErr != nil {
			d.log.Info("message drainer stopped")
			return
		}
	}
}

// DrainOnce runs a single drain cycle and returns how many messages were
// persisted.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	if err := d.gate.Acquire(ctx); err != nil {
		return 0, err
	}
	defer d.gate.Release()

	sess, err := mesh.OpenSession(ctx, d.connector, d.profile, d.log)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	if _, err := sess.AppStart(ctx); err != nil {
		return 0, err
	}

	channelNames := d.channelNames(ctx, sess)
	contactNames := d.contactNames(ctx, sess)

	rows := d.drainQueue(ctx, sess, channelNames, contactNames)
	if len(rows) == 0 {
		return 0, nil
	}

	if err := d.messages.InsertBatch(ctx, rows); err != nil {
		return 0, err
	}

	// Broadcast only after persistence so consumers never see a message
	// the log does not hold.
	for _, row := range rows {
		d.bus.Publish(events.Message{
			ReceivedAt:      row.ReceivedAt,
			Kind:            row.Kind,
			ChannelIndex:    row.ChannelIndex,
			ChannelName:     row.ChannelName,
			SenderTimestamp: row.SenderTimestamp,
			SenderName:      row.SenderName,
			HopCount:        row.HopCount,
			SNR:             row.SNR,
			Text:            row.Text,
		})
	}
	return len(rows), nil
}

// drainQueue pulls messages until the queue is empty, the cycle cap is hit,
// or the device stops answering. Partial results are kept: an error mid
// drain still persists what was already pulled.
func (d *Drainer) drainQueue(ctx context.Context, sess *mesh.Session, channelNames map[int]string, contactNames map[string]string) []store.Message {
	var rows []store.Message
	for len(rows) < maxDrainPerCycle {
		raw, err := sess.SyncNextMessage(ctx)
		if errors.Is(err, mesh.ErrNoMoreMessages) {
			break
		}
		if err != nil {
			d.log.Warn("stopping drain early", "error", err, "drained", len(rows))
			break
		}
		rows = append(rows, d.buildRow(raw, channelNames, contactNames))
	}
	return rows
}

// buildRow turns a raw device message into a log row, resolving the channel
// name, splitting the conventional "Sender: body" prefix on channel
// messages, and resolving direct senders through the contact list.
func (d *Drainer) buildRow(raw mesh.RawMessage, channelNames map[int]string, contactNames map[string]string) store.Message {
	row := store.Message{
		ReceivedAt:      d.now().UTC(),
		Kind:            string(raw.Kind),
		ChannelIndex:    raw.ChannelIndex,
		SenderTimestamp: raw.SenderTimestamp,
		SenderKeyPrefix: strings.ToLower(raw.PubKeyPrefix),
		HopCount:        raw.PathLen,
		SNR:             raw.SNR,
		Text:            raw.Text,
		TextType:        raw.TextType,
		Signature:       raw.Signature,
	}

	switch raw.Kind {
	case mesh.KindChannel:
		row.ChannelName = channelNames[raw.ChannelIndex]
		row.SenderName, row.Text = splitSenderText(raw.Text)
	case mesh.KindDirect:
		row.ChannelIndex = -1
		row.SenderName = contactNames[row.SenderKeyPrefix]
	}
	return row
}

// channelNames maps slot index to channel name for this cycle. Scan
// failures degrade to unnamed channels rather than failing the drain.
func (d *Drainer) channelNames(ctx context.Context, sess *mesh.Session) map[int]string {
	names := make(map[int]string)
	slots, err := sess.ScanChannels(ctx)
	if err != nil {
		d.log.Warn("channel scan failed, messages will be unnamed", "error", err)
		return names
	}
	for _, slot := range slots {
		names[slot.Index] = slot.Name
	}
	return names
}

// contactNames maps contact key prefix to contact name for this cycle.
func (d *Drainer) contactNames(ctx context.Context, sess *mesh.Session) map[string]string {
	names := make(map[string]string)
	contacts, err := sess.Contacts(ctx)
	if err != nil {
		d.log.Warn("contact list fetch failed, direct senders will be unnamed", "error", err)
		return names
	}
	for _, c := range contacts {
		names[c.KeyPrefix()] = c.Name
	}
	return names
}

// splitSenderText splits the mesh convention of "Sender: body" on the first
// ": ". Text without the separator is all body with no sender.
func splitSenderText(text string) (sender, body string) {
	if idx := strings.Index(text, ": "); idx >= 0 {
		return text[:idx], text[idx+2:]
	}
	return "", text
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
