package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// CommandTimeoutService expires commands that were dispatched but never
// acked. Each scan transitions at most scanLimit commands; the guarded
// update means concurrent workers race safely and only the winner emits the
// timeout event.
type CommandTimeoutService struct {
	logger    *logrus.Entry
	registry  *schemas.Registry
	commands  storage.CommandsRepository
	publisher message.Publisher
	monitor   *metrics.Set
	topics    config.Topics

	ackTimeout   time.Duration
	scanInterval time.Duration
	scanLimit    int
	now          func() time.Time
}

type CommandTimeoutServiceBuilder struct {
	Logger    *logrus.Entry
	Registry  *schemas.Registry
	Commands  storage.CommandsRepository
	Publisher message.Publisher
	Monitor   *metrics.Set
	Topics    config.Topics

	AckTimeout   time.Duration
	ScanInterval time.Duration
	ScanLimit    int
	Now          func() time.Time
}

func NewCommandTimeoutService(builder CommandTimeoutServiceBuilder) *CommandTimeoutService {
	now := builder.Now
	if now == nil {
		now = time.Now
	}

	return &CommandTimeoutService{
		logger:       builder.Logger,
		registry:     builder.Registry,
		commands:     builder.Commands,
		publisher:    builder.Publisher,
		monitor:      builder.Monitor,
		topics:       builder.Topics,
		ackTimeout:   builder.AckTimeout,
		scanInterval: builder.ScanInterval,
		scanLimit:    builder.ScanLimit,
		now:          now,
	}
}

// Run blocks until ctx is canceled. Scan errors are logged and the loop
// continues; a wedged store must not kill the worker.
func (svc *CommandTimeoutService) Run(ctx context.Context) {
	ticker := time.NewTicker(svc.scanInterval)
	defer ticker.Stop()

	for {
		scanCtx := helpers.InitContext()
		if err := svc.ScanOnce(scanCtx); err != nil {
			helpers.ConfigureLogger(scanCtx, svc.logger).Errorf("timeout scan failed: %s", err)
			svc.monitor.ProcessingErrors.WithLabelValues("scan").Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (svc *CommandTimeoutService) ScanOnce(ctx context.Context) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	cutoff := svc.now().Add(-svc.ackTimeout)
	candidates, err := svc.commands.ListSentBefore(ctx, cutoff, svc.scanLimit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	detail := fmt.Sprintf("ack timeout after %ds", int(svc.ackTimeout.Seconds()))
	expired := 0

	for _, candidate := range candidates {
		won, err := svc.commands.MarkTimeout(ctx, candidate.CommandID, candidate.DeviceID, detail)
		if err != nil {
			return err
		}
		if !won {
			continue
		}

		expired++
		svc.monitor.StoreWrites.WithLabelValues("device_commands").Inc()
		svc.publishTimeoutEvent(ctx, candidate, detail)
	}

	lFunc.Infof("timeout scan: candidates=%d expired=%d", len(candidates), expired)
	return nil
}

// publishTimeoutEvent is best effort: the status transition is already
// durable, and the audit stream tolerates gaps better than the command table
// tolerates double transitions.
func (svc *CommandTimeoutService) publishTimeoutEvent(ctx context.Context, candidate storage.SentCommand, detail string) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger).WithField("device-id", candidate.DeviceID)

	event := models.DeviceCommandEvent{
		SchemaVersion: models.SchemaVersion,
		EventID:       helpers.NewTraceID(),
		EventType:     models.CommandEventTimeout,
		CreatedTs:     svc.now().UTC().Format(time.RFC3339Nano),
		CommandID:     candidate.CommandID,
		DeviceID:      candidate.DeviceID,
		Status:        models.CommandTimeout,
		Detail:        detail,
	}

	if err := svc.registry.ValidateStruct(schemas.DeviceCommandEventsV1, event); err != nil {
		lFunc.Errorf("timeout event mapping invalid: %s", err)
		return
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		lFunc.Errorf("could not encode timeout event: %s", err)
		return
	}

	if err := svc.publisher.Publish(svc.topics.DeviceCommandEvents, eventbus.NewMessage(candidate.DeviceID, encoded)); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("publish").Inc()
		lFunc.Errorf("could not publish timeout event: %s", err)
		return
	}

	svc.monitor.MessagesPublished.WithLabelValues(svc.topics.DeviceCommandEvents).Inc()
	lFunc.Warnf("command '%s' timed out", candidate.CommandID)
}
