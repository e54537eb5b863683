package bot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
	"github.com/magabrotheeeer/vpn-shop/internal/services/storefront"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"/start", CommandStart},
		{"/start@vpn_shop_bot", CommandStart},
		{"/start ref123", CommandStart},
		{buttonHome, CommandStart},
		{buttonShop, CommandShop},
		{"/shop", CommandShop},
		{buttonProfile, CommandProfile},
		{buttonTrial, CommandTrial},
		{"/help", CommandHelp},
		{"  " + buttonHelp + " ", CommandHelp},
		{"привет", CommandUnknown},
		{"", CommandUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.text))
		})
	}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data       string
		wantAction Action
		wantID     int64
		wantErr    bool
	}{
		{data: "buy_plan_3", wantAction: ActionBuyPlan, wantID: 3},
		{data: "admin_approve_42", wantAction: ActionApprove, wantID: 42},
		{data: "admin_reject_7", wantAction: ActionReject, wantID: 7},
		{data: "buy_plan_", wantErr: true},
		{data: "buy_plan_abc", wantErr: true},
		{data: "admin_approve_-1", wantErr: true},
		{data: "nav_menu", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, id, err := ParseCallback(tt.data)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ActionUnknown, action)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestCallbackDataRoundTrip(t *testing.T) {
	action, id, err := ParseCallback(approveData(15))
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, action)
	assert.Equal(t, int64(15), id)

	action, id, err = ParseCallback(buyPlanData(2))
	require.NoError(t, err)
	assert.Equal(t, ActionBuyPlan, action)
	assert.Equal(t, int64(2), id)
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{entitlement.ErrBanned, "⛔ Ваш аккаунт заблокирован."},
		{fmt.Errorf("entitlement.GrantTrial: %w", entitlement.ErrTrialUnavailable), "Пробный период доступен только новым пользователям."},
		{entitlement.ErrPlanNotFound, "Тариф не найден или больше недоступен."},
		{storefront.ErrNotFound, "Тариф не найден или больше недоступен."},
		{entitlement.ErrRemoteUnavailable, "Сервер VPN временно недоступен, попробуйте позже."},
		{entitlement.ErrAlreadyProcessed, "Транзакция уже обработана."},
		{errors.New("boom"), "Произошла ошибка, попробуйте позже."},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, describeError(tt.err))
		})
	}
}

func TestPurchases(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	p := newPurchases(time.Hour)
	p.now = func() time.Time { return now }

	_, ok := p.get(1)
	assert.False(t, ok)

	p.put(1, 2, 200)
	got, ok := p.get(1)
	require.True(t, ok)
	assert.Equal(t, 2, got.PlanID)
	assert.Equal(t, int64(200), got.Amount)

	now = now.Add(2 * time.Hour)
	_, ok = p.get(1)
	assert.False(t, ok, "abandoned purchase must expire")

	p.put(1, 3, 500)
	p.drop(1)
	_, ok = p.get(1)
	assert.False(t, ok)
}

func TestFloodGuard(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	g := newFloodGuard(1, 2)
	g.now = func() time.Time { return now }

	assert.True(t, g.allow(1))
	assert.True(t, g.allow(1))
	assert.False(t, g.allow(1), "burst exhausted")
	assert.True(t, g.allow(2), "other users are not affected")

	now = now.Add(time.Second)
	assert.True(t, g.allow(1))

	now = now.Add(floodIdle + time.Minute)
	g.allow(2)
	assert.Len(t, g.users, 1, "idle users are evicted")
}
