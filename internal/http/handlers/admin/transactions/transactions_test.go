package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-shop/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
)

type EngineMock struct {
	mock.Mock
}

func (m *EngineMock) ListTransactions(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]*models.Transaction, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *EngineMock) ApproveTransaction(ctx context.Context, txID int64) (*entitlement.ApproveResult, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entitlement.ApproveResult), args.Error(1)
}

func (m *EngineMock) RejectTransaction(ctx context.Context, txID int64) (*entitlement.RejectResult, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entitlement.RejectResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestListHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		setupMock  func(m *EngineMock)
		wantStatus int
		wantCount  float64
	}{
		{
			name:  "defaults",
			query: "",
			setupMock: func(m *EngineMock) {
				m.On("ListTransactions", mock.Anything, models.TransactionStatus(""), 50, 0).
					Return([]*models.Transaction{{ID: 1}, {ID: 2}}, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantCount:  2,
		},
		{
			name:  "pending with paging",
			query: "?status=pending&limit=10&offset=20",
			setupMock: func(m *EngineMock) {
				m.On("ListTransactions", mock.Anything, models.TransactionPending, 10, 20).
					Return(nil, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantCount:  0,
		},
		{
			name:       "unknown status",
			query:      "?status=paid",
			setupMock:  func(_ *EngineMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "limit not a number",
			query:      "?limit=ten",
			setupMock:  func(_ *EngineMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "limit too big",
			query:      "?limit=1000",
			setupMock:  func(_ *EngineMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:  "storage error",
			query: "?status=approved",
			setupMock: func(m *EngineMock) {
				m.On("ListTransactions", mock.Anything, models.TransactionApproved, 50, 0).
					Return(nil, errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(EngineMock)
			tt.setupMock(m)

			w := httptest.NewRecorder()
			NewList(newNoopLogger(), m).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/transactions"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			if tt.wantStatus == http.StatusOK {
				data := resp.Data.(map[string]any)
				assert.Equal(t, tt.wantCount, data["count"])
				assert.NotNil(t, data["transactions"])
			} else {
				assert.Equal(t, response.StatusError, resp.Status)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestApproveHandler(t *testing.T) {
	expire := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		id         string
		engineErr  error
		wantStatus int
		wantError  string
	}{
		{name: "approved", id: "5", wantStatus: http.StatusOK},
		{name: "invalid id", id: "abc", wantStatus: http.StatusBadRequest, wantError: "invalid id"},
		{name: "negative id", id: "-1", wantStatus: http.StatusBadRequest, wantError: "invalid id"},
		{name: "unknown transaction", id: "5", engineErr: entitlement.ErrNotFound, wantStatus: http.StatusNotFound, wantError: "transaction not found"},
		{name: "already processed", id: "5", engineErr: entitlement.ErrAlreadyProcessed, wantStatus: http.StatusConflict, wantError: "transaction already processed"},
		{name: "plan removed", id: "5", engineErr: entitlement.ErrPlanNotFound, wantStatus: http.StatusUnprocessableEntity, wantError: "plan not found"},
		{
			name:       "panel down",
			id:         "5",
			engineErr:  fmt.Errorf("entitlement.ApproveTransaction: %w", entitlement.ErrRemoteUnavailable),
			wantStatus: http.StatusBadGateway,
			wantError:  "vpn panel unavailable",
		},
		{name: "unexpected", id: "5", engineErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantError: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(EngineMock)
			if tt.id == "5" {
				if tt.engineErr != nil {
					m.On("ApproveTransaction", mock.Anything, int64(5)).Return(nil, tt.engineErr).Once()
				} else {
					m.On("ApproveTransaction", mock.Anything, int64(5)).Return(&entitlement.ApproveResult{
						Transaction: &models.Transaction{ID: 5, Status: models.TransactionApproved},
						Plan:        &models.Plan{ID: 2, Name: "1 месяц"},
						AccessLink:  "https://panel/sub/x",
						ExpireAt:    expire,
					}, nil).Once()
				}
			}

			req := withID(httptest.NewRequest(http.MethodPost, "/api/v1/admin/transactions/"+tt.id+"/approve", nil), tt.id)
			w := httptest.NewRecorder()
			NewApprove(newNoopLogger(), m).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			} else {
				data := resp.Data.(map[string]any)
				assert.Equal(t, "https://panel/sub/x", data["access_link"])
			}
			m.AssertExpectations(t)
		})
	}
}

func TestRejectHandler(t *testing.T) {
	keptUntil := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		result     *entitlement.RejectResult
		engineErr  error
		wantStatus int
		wantRemote bool
		wantExpire bool
	}{
		{
			name: "rejected and disabled",
			result: &entitlement.RejectResult{
				Transaction: &models.Transaction{ID: 5, Status: models.TransactionRejected},
				Policy:      entitlement.RejectDisable,
				Disabled:    true,
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "rejected, panel failed",
			result: &entitlement.RejectResult{
				Transaction: &models.Transaction{ID: 5, Status: models.TransactionRejected},
				Policy:      entitlement.RejectDisable,
				RemoteErr:   entitlement.ErrRemoteUnavailable,
			},
			wantStatus: http.StatusOK,
			wantRemote: true,
		},
		{
			name: "rejected, paid time kept",
			result: &entitlement.RejectResult{
				Transaction: &models.Transaction{ID: 5, Status: models.TransactionRejected},
				Policy:      entitlement.RejectDisable,
				ExpireAt:    &keptUntil,
			},
			wantStatus: http.StatusOK,
			wantExpire: true,
		},
		{
			name:       "already processed",
			engineErr:  entitlement.ErrAlreadyProcessed,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(EngineMock)
			if tt.engineErr != nil {
				m.On("RejectTransaction", mock.Anything, int64(5)).Return(nil, tt.engineErr).Once()
			} else {
				m.On("RejectTransaction", mock.Anything, int64(5)).Return(tt.result, nil).Once()
			}

			req := withID(httptest.NewRequest(http.MethodPost, "/api/v1/admin/transactions/5/reject", nil), "5")
			w := httptest.NewRecorder()
			NewReject(newNoopLogger(), m).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			if tt.wantStatus == http.StatusOK {
				data := resp.Data.(map[string]any)
				_, hasRemote := data["remote_error"]
				assert.Equal(t, tt.wantRemote, hasRemote)
				_, hasExpire := data["expire_at"]
				assert.Equal(t, tt.wantExpire, hasExpire)
				assert.Equal(t, string(entitlement.RejectDisable), data["policy"])
			}
			m.AssertExpectations(t)
		})
	}
}

func TestReviewOutlivesClientDisconnect(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		result  any
		handler func(m *EngineMock) http.Handler
	}{
		{
			name:   "approve",
			method: "ApproveTransaction",
			result: &entitlement.ApproveResult{
				Transaction: &models.Transaction{ID: 5, Status: models.TransactionApproved},
				Plan:        &models.Plan{ID: 2},
			},
			handler: func(m *EngineMock) http.Handler { return NewApprove(newNoopLogger(), m) },
		},
		{
			name:   "reject",
			method: "RejectTransaction",
			result: &entitlement.RejectResult{
				Transaction: &models.Transaction{ID: 5, Status: models.TransactionRejected},
				Policy:      entitlement.RejectDisable,
			},
			handler: func(m *EngineMock) http.Handler { return NewReject(newNoopLogger(), m) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqCtx, disconnect := context.WithCancel(context.Background())
			defer disconnect()

			m := new(EngineMock)
			m.On(tt.method, mock.Anything, int64(5)).Run(func(args mock.Arguments) {
				disconnect()
				ctx := args.Get(0).(context.Context)
				assert.NoError(t, ctx.Err(), "engine context must survive the client going away")
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)
			}).Return(tt.result, nil).Once()

			req := withID(httptest.NewRequest(http.MethodPost, "/api/v1/admin/transactions/5/review", nil).WithContext(reqCtx), "5")
			w := httptest.NewRecorder()
			tt.handler(m).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.ErrorIs(t, reqCtx.Err(), context.Canceled)
			m.AssertExpectations(t)
		})
	}
}
