package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/usage"
)

// MessageSender sends one IM message
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// BudgetAlerter posts usage budget alerts into a Lark group chat
type BudgetAlerter struct {
	sender MessageSender
	chatID string
	logger *zap.Logger
}

// NewBudgetAlerter creates an alerter for chatID
func NewBudgetAlerter(sender MessageSender, chatID string, logger *zap.Logger) *BudgetAlerter {
	return &BudgetAlerter{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// Alert implements usage.Alerter
func (a *BudgetAlerter) Alert(ctx context.Context, alert usage.BudgetAlert) error {
	content, err := json.Marshal(map[string]string{"text": alert.Message()})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	messageID, err := a.sender.SendMessage(ctx, ReceiveIDTypeChat, a.chatID, "text", string(content))
	if err != nil {
		return fmt.Errorf("failed to post budget alert: %w", err)
	}

	a.logger.Info("Budget alert posted",
		zap.String("ceiling", string(alert.Ceiling)),
		zap.String("message_id", messageID))
	return nil
}
