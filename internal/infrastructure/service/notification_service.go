package service

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// LogNotifier stands in for the notification subsystem when no Redis sink
// is configured; it only logs.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(l *logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Nop()
	}
	return &LogNotifier{logger: l.With(logger.Component("notifier"))}
}

// NotifyAchievement logs the unlock.
func (n *LogNotifier) NotifyAchievement(_ context.Context, ev shared.AchievementUnlockedEvent) error {
	n.logger.Info("achievement notification",
		logger.UserID(ev.UserID),
		logger.String("rule_id", ev.RuleID),
		logger.String("title", ev.Title),
	)
	return nil
}
