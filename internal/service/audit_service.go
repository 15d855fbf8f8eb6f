package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/repository"
)

// AuditService records what happened to tickets: logs, metrics, the Postgres history
// table and the Redis event stream. The last two are optional.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	history    repository.TicketHistoryRepository
	redis      *redis.Client
	registry   repository.TicketRegistry
	selections repository.SelectionTable
	cfg        config.RedisConfig
}

// AuditDependencies bundles audit sinks.
type AuditDependencies struct {
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	History    repository.TicketHistoryRepository
	Redis      *redis.Client
	Registry   repository.TicketRegistry
	Selections repository.SelectionTable
}

// NewAuditService creates the service.
func NewAuditService(deps AuditDependencies, cfg config.RedisConfig) *AuditService {
	return &AuditService{
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		history:    deps.History,
		redis:      deps.Redis,
		registry:   deps.Registry,
		selections: deps.Selections,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketOpened, a.handleTicketOpened)
	a.dispatcher.Subscribe(events.EventTicketClaimed, a.handleTicketClaimed)
	a.dispatcher.Subscribe(events.EventTicketClosing, a.handleTicketClosing)
	a.dispatcher.Subscribe(events.EventTicketDeleted, a.handleTicketDeleted)
	a.dispatcher.Subscribe(events.EventSelectionRecorded, a.handleSelectionRecorded)
	a.dispatcher.Subscribe(events.EventMessageForwarded, a.handleMessageForwarded)
	a.dispatcher.Subscribe(events.EventStaffReplied, a.handleStaffReplied)
	for _, eventType := range events.AllEventTypes {
		a.dispatcher.Subscribe(eventType, a.appendToStream)
	}
}

func (a *AuditService) handleTicketOpened(ctx context.Context, event events.Event) error {
	a.logger.Info("TicketOpened", zap.Int64("ticket_id", event.TicketID), zap.String("owner", event.Owner), zap.Any("payload", event.Payload))
	a.refreshGauges()
	return a.recordHistory(ctx, event, domain.ChangeTypeOpened)
}

func (a *AuditService) handleTicketClaimed(ctx context.Context, event events.Event) error {
	a.logger.Info("TicketClaimed", zap.Int64("ticket_id", event.TicketID), zap.Any("actor", event.Actor))
	return a.recordHistory(ctx, event, domain.ChangeTypeClaimed)
}

func (a *AuditService) handleTicketClosing(ctx context.Context, event events.Event) error {
	a.logger.Info("TicketClosing", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.TicketClosingPayload); ok {
		a.metrics.RecordClosure(string(payload.Reason))
	}
	return a.recordHistory(ctx, event, domain.ChangeTypeClosing)
}

func (a *AuditService) handleTicketDeleted(ctx context.Context, event events.Event) error {
	a.logger.Info("TicketDeleted", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.TicketDeletedPayload); ok {
		a.metrics.RecordDeletion(payload.ChannelDeleted)
	}
	a.refreshGauges()
	return a.recordHistory(ctx, event, domain.ChangeTypeDeleted)
}

func (a *AuditService) handleSelectionRecorded(_ context.Context, event events.Event) error {
	if payload, ok := event.Payload.(events.SelectionRecordedPayload); ok {
		a.metrics.RecordSelection(string(payload.Category))
	}
	a.refreshGauges()
	return nil
}

func (a *AuditService) handleMessageForwarded(_ context.Context, event events.Event) error {
	a.logger.Debug("MessageForwarded", zap.String("owner", event.Owner))
	a.metrics.RecordForward()
	a.refreshGauges()
	return nil
}

func (a *AuditService) handleStaffReplied(_ context.Context, event events.Event) error {
	outcome := "delivered"
	if payload, ok := event.Payload.(events.StaffRepliedPayload); ok && !payload.Delivered {
		outcome = payload.Reason
	}
	a.metrics.RecordStaffReply(outcome)
	return nil
}

func (a *AuditService) refreshGauges() {
	if a.registry != nil {
		a.metrics.SetOpenTickets(a.registry.Count())
	}
	if a.selections != nil {
		a.metrics.SetPendingSelections(a.selections.Len())
	}
}

func (a *AuditService) recordHistory(ctx context.Context, event events.Event, change domain.TicketChangeType) error {
	if a.history == nil || event.TicketID == 0 {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:   event.TicketID,
		OwnerID:    event.Owner,
		ChannelID:  event.ChannelID,
		ChangeType: change,
		Details:    payloadDetails(event.Payload),
	}
	if event.Actor != nil {
		actorID := event.Actor.ID
		entry.ChangedByID = &actorID
	}
	if err := a.history.Create(ctx, entry); err != nil {
		return fmt.Errorf("record %s history: %w", change, err)
	}
	return nil
}

func (a *AuditService) appendToStream(ctx context.Context, event events.Event) error {
	if a.redis == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	err = a.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: a.cfg.StreamKey,
		MaxLen: a.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":    event.ID,
			"type":  string(event.Type),
			"owner": event.Owner,
			"event": string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append event %s to stream: %w", event.ID, err)
	}
	return nil
}

func payloadDetails(payload interface{}) map[string]any {
	details := map[string]any{}
	if payload == nil {
		return details
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return details
	}
	_ = json.Unmarshal(raw, &details)
	return details
}
