package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/usage"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	args := m.Called(ctx, receiveIDType, receiveID, msgType, content)
	return args.String(0), args.Error(1)
}

func TestBudgetAlerter_PostsTextToChat(t *testing.T) {
	sender := new(mockSender)
	alert := usage.BudgetAlert{Ceiling: usage.CeilingDailyCost, Date: "2024-06-01", Limit: "50.00", Actual: "52.10"}

	sender.On("SendMessage", mock.Anything, ReceiveIDTypeChat, "oc_budget", "text", mock.MatchedBy(func(content string) bool {
		var body map[string]string
		if err := json.Unmarshal([]byte(content), &body); err != nil {
			return false
		}
		return body["text"] == alert.Message()
	})).Return("om_1", nil)

	a := NewBudgetAlerter(sender, "oc_budget", zap.NewNop())
	require.NoError(t, a.Alert(context.Background(), alert))
	sender.AssertExpectations(t)
}

func TestBudgetAlerter_PropagatesSendFailure(t *testing.T) {
	sender := new(mockSender)
	sender.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("API error: code=230002"))

	a := NewBudgetAlerter(sender, "oc_budget", zap.NewNop())
	err := a.Alert(context.Background(), usage.BudgetAlert{Ceiling: usage.CeilingDailyRequests})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230002")
}

func TestBudgetAlerter_SatisfiesUsageAlerter(t *testing.T) {
	var _ usage.Alerter = (*BudgetAlerter)(nil)
	var _ MessageSender = (*Client)(nil)
}
