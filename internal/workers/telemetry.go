package workers

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
	"github.com/nmoncrief/meshgate/internal/mesh"
	"github.com/nmoncrief/meshgate/internal/store"
)

// statusRetries is how many extra attempts a repeater status request gets
// before the poller gives up on it for this cycle.
const statusRetries = 2

// Mirror receives a best-effort copy of every persisted telemetry point,
// typically backed by InfluxDB. A nil Mirror disables mirroring.
type Mirror interface {
	WriteTelemetryPoint(p store.TelemetryPoint)
}

// RepeaterPoller samples battery telemetry from every enabled repeater on
// a fixed interval.
type RepeaterPoller struct {
	gate      *mesh.Gate
	connector mesh.Connector
	profile   mesh.Profile
	repeaters store.RepeaterStore
	telemetry store.TelemetryStore
	mirror    Mirror
	log       *logging.Logger

	interval    time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration

	now func() time.Time
}

// NewRepeaterPoller creates a repeater telemetry poller. mirror may be nil.
func NewRepeaterPoller(
	gate *mesh.Gate,
	connector mesh.Connector,
	profile mesh.Profile,
	repeaters store.RepeaterStore,
	telemetry store.TelemetryStore,
	mirror Mirror,
	cfg config.WorkersConfig,
	log *logging.Logger,
) *RepeaterPoller {
	return &RepeaterPoller{
		gate:        gate,
		connector:   connector,
		profile:     profile,
		repeaters:   repeaters,
		telemetry:   telemetry,
		mirror:      mirror,
		log:         log.With("component", "repeater_poller"),
		interval:    time.Duration(cfg.RepeaterPollInterval) * time.Second,
		backoffBase: time.Duration(cfg.BackoffBase) * time.Second,
		backoffMax:  time.Duration(cfg.BackoffMax) * time.Second,
		now:         time.Now,
	}
}

// Run polls in a loop until ctx is done, with the same backoff discipline
// as the drainer.
func (p *RepeaterPoller) Run(ctx context.Context) {
	p.log.Info("repeater poller started", "interval", p.interval.String())

	backoff := p.backoffBase
	for {
		count, err := p.PollOnce(ctx)
		if ctx.Err() != nil {
			p.log.Info("repeater poller stopped")
			return
		}

		sleep := p.interval
		if err != nil {
			p.log.Warn("poll cycle failed",
				"error", err,
				"retry_in", backoff.String(),
			)
			sleep = backoff
			backoff *= 2
			if backoff > p.backoffMax {
				backoff = p.backoffMax
			}
		} else {
			backoff = p.backoffBase
			if count > 0 {
				p.log.Debug("telemetry sampled", "points", count)
			}
		}

		if sleepErr := sleepCtx(ctx, sleep); sleepErr != nil {
			p.log.Info("repeater poller stopped")
			return
		}
	}
}

// PollOnce samples every enabled repeater once and returns how many points
// were persisted. An unreachable repeater is logged and skipped; the rest
// of the cycle continues.
func (p *RepeaterPoller) PollOnce(ctx context.Context) (int, error) {
	reps, err := p.repeaters.ListEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing enabled repeaters: %w", err)
	}
	if len(reps) == 0 {
		return 0, nil
	}

	var points []store.TelemetryPoint
	for _, rep := range reps {
		samples, err := p.sample(ctx, rep)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			p.log.Warn("skipping repeater this cycle",
				"repeater", rep.Name,
				"error", err,
			)
			continue
		}
		points = append(points, samples...)
	}

	if len(points) == 0 {
		return 0, nil
	}
	if err := p.telemetry.InsertPoints(ctx, points); err != nil {
		return 0, err
	}

	if p.mirror != nil {
		for _, point := range points {
			p.mirror.WriteTelemetryPoint(point)
		}
	}
	return len(points), nil
}

// sample logs in to one repeater and converts its status report into
// telemetry points. The gate is held per repeater, not per cycle, so API
// traffic can interleave with a long poll.
func (p *RepeaterPoller) sample(ctx context.Context, rep store.Repeater) ([]store.TelemetryPoint, error) {
	if err := p.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.gate.Release()

	sess, err := mesh.OpenSession(ctx, p.connector, p.profile, p.log)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	contact, err := sess.FindContactByKey(ctx, rep.PublicKey)
	if err != nil {
		return nil, err
	}

	status, err := sess.Status(ctx, contact, rep.Password, statusRetries)
	if err != nil {
		return nil, err
	}

	recordedAt := p.now().UTC()
	return []store.TelemetryPoint{
		{
			RecordedAt:   recordedAt,
			RepeaterID:   rep.ID,
			RepeaterName: rep.Name,
			MetricKey:    "battery_voltage",
			MetricValue:  round(status.BatteryVolts(), 3),
		},
		{
			RecordedAt:   recordedAt,
			RepeaterID:   rep.ID,
			RepeaterName: rep.Name,
			MetricKey:    "battery_percentage",
			MetricValue:  round(mesh.BatteryPercentage(status.BatteryMilliVolts), 1),
		},
	}, nil
}

// round rounds v to the given number of decimal places.
func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
