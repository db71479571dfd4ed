package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	mqcontracts "taskhub/contracts/mq"
	"taskhub/pkg/logger"

	"go.uber.org/zap"
)

// Invalidator is satisfied by *workspace.Registry.
type Invalidator interface {
	InvalidateOrganization(orgID, exceptSession string) int
}

// Deduper is satisfied by *util.Deduper.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, eventID string) bool
}

var ErrMissingOrganization = errors.New("task event without organization_id")

// TaskEventHandler 处理其它网关实例转发来的 task.* 事件，使本地同组织会话的任务缓存失效
type TaskEventHandler struct {
	registry   Invalidator
	dedup      Deduper
	instanceID string
	logger     *zap.Logger
}

// NewTaskEventHandler 创建处理器；dedup 可以为 nil（未配置 redis 时）
func NewTaskEventHandler(registry Invalidator, dedup Deduper, instanceID string, logger *zap.Logger) *TaskEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskEventHandler{
		registry:   registry,
		dedup:      dedup,
		instanceID: instanceID,
		logger:     logger,
	}
}

func (h *TaskEventHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.TaskEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal TaskEventPayload", zap.Error(err))
		return err
	}
	if p.OrganizationID == "" {
		return ErrMissingOrganization
	}

	log := logger.WithTrace(ctx, h.logger)

	// 每个实例都要处理一次，所以去重 key 带上实例 ID
	if h.dedup != nil && p.EventID != "" {
		if !h.dedup.AcquireOnce(ctx, "task_event_invalidate:"+h.instanceID, p.EventID) {
			return nil
		}
	}

	n := h.registry.InvalidateOrganization(p.OrganizationID, p.SessionID)
	log.Info("Handling task event",
		zap.String("type", p.Type),
		zap.String("event_id", p.EventID),
		zap.String("organization_id", p.OrganizationID),
		zap.String("task_id", p.TaskID),
		zap.Int("invalidated_sessions", n),
	)
	return nil
}
