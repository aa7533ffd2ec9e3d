package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/http/middleware"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/repository"
	"github.com/ignatzorin/admarket-backend/internal/service"
	"github.com/ignatzorin/admarket-backend/internal/tax"
)

func withUser(userID uuid.UUID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
		c.Set(middleware.ContextRoleKey, role)
		c.Next()
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

type memoryNotifications struct {
	items map[uuid.UUID]models.Notification
}

func (m *memoryNotifications) Create(_ context.Context, n *models.Notification) error {
	n.ID = uuid.New()
	m.items[n.ID] = *n
	return nil
}

func (m *memoryNotifications) GetByID(_ context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return nil, repository.ErrNotificationNotFound
	}
	return &n, nil
}

func (m *memoryNotifications) List(_ context.Context, userID uuid.UUID, unreadOnly bool, _, _ int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range m.items {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryNotifications) MarkAsRead(_ context.Context, id, userID uuid.UUID) error {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return repository.ErrNotificationNotFound
	}
	n.IsRead = true
	m.items[id] = n
	return nil
}

func (m *memoryNotifications) MarkAllAsRead(_ context.Context, userID uuid.UUID) (int64, error) {
	var updated int64
	for id, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			m.items[id] = n
			updated++
		}
	}
	return updated, nil
}

func (m *memoryNotifications) Delete(_ context.Context, id, userID uuid.UUID) error {
	if n, ok := m.items[id]; !ok || n.UserID != userID {
		return repository.ErrNotificationNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memoryNotifications) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func newNotificationRouter(t *testing.T, userID uuid.UUID) (*gin.Engine, *service.NotificationService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := service.NewNotificationService(&memoryNotifications{items: map[uuid.UUID]models.Notification{}})
	handler := NewNotificationHandler(svc)

	r := gin.New()
	g := r.Group("/", withUser(userID, models.RoleFreelancer))
	g.GET("/notifications", handler.ListNotifications)
	g.GET("/notifications/unread/count", handler.CountUnread)
	g.PUT("/notifications/read-all", handler.MarkAllAsRead)
	g.GET("/notifications/:id", handler.GetNotification)
	g.DELETE("/notifications/:id", handler.DeleteNotification)
	return r, svc
}

func TestNotificationHandler_Flow(t *testing.T) {
	userID := uuid.New()
	r, svc := newNotificationRouter(t, userID)
	ctx := context.Background()

	require.NoError(t, svc.SaveNotification(ctx, userID, "invoice.issued", gin.H{"number": "F2026-00001"}))
	require.NoError(t, svc.SaveNotification(ctx, userID, "milestone.paid", gin.H{"amount": 900}))
	require.NoError(t, svc.SaveNotification(ctx, uuid.New(), "milestone.paid", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications/unread/count", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var count struct {
		Count int `json:"count"`
	}
	decode(t, w, &count)
	assert.Equal(t, 2, count.Count)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/notifications/read-all", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var updated struct {
		Updated int64 `json:"updated"`
	}
	decode(t, w, &updated)
	assert.Equal(t, int64(2), updated.Updated)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications?unread_only=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.Notification
	decode(t, w, &items)
	assert.Empty(t, items)
}

func TestNotificationHandler_GetForeignIsNotFound(t *testing.T) {
	owner := uuid.New()
	r, svc := newNotificationRouter(t, uuid.New())
	require.NoError(t, svc.SaveNotification(context.Background(), owner, "invoice.issued", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestNotificationHandler_InvalidID(t *testing.T) {
	r, _ := newNotificationRouter(t, uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/notifications/nope", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func newInvoiceHandler(t *testing.T) *InvoiceHandler {
	t.Helper()
	rates, err := tax.LoadRates("")
	require.NoError(t, err)
	return NewInvoiceHandler(service.NewInvoiceService(nil, tax.NewCalculator(rates), nil))
}

func TestInvoiceHandler_PreviewTax(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/invoices/tax-preview", newInvoiceHandler(t).PreviewTax)

	body := `{"subtotal":500,"supplier":{"country_code":"es","is_business":true,"tax_id":"B12345678"},"customer":{"country_code":"FR"}}`
	req := httptest.NewRequest(http.MethodPost, "/invoices/tax-preview", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result tax.Result
	decode(t, w, &result)
	assert.Equal(t, tax.RegimeEUB2C, result.Regime)
	assert.InDelta(t, 105.0, result.VATAmount, 0.001)
	assert.InDelta(t, 605.0, result.Total, 0.001)
}

func TestInvoiceHandler_PreviewTax_MissingSupplierCountry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/invoices/tax-preview", newInvoiceHandler(t).PreviewTax)

	req := httptest.NewRequest(http.MethodPost, "/invoices/tax-preview", bytes.NewBufferString(`{"subtotal":100}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestContractHandler_RequiresActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ContractHandler{contracts: nil}
	r.POST("/milestones/:id/fund", handler.Fund)
	r.POST("/milestones/:id/release", handler.Release)

	for _, path := range []string{"/milestones/" + uuid.NewString() + "/fund", "/milestones/" + uuid.NewString() + "/release"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAdminHandler_ListUsers_InvalidActiveFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &AdminHandler{}
	r.GET("/admin/users", handler.ListUsers)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/users?active=maybe", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletHandler_Webhook_PaymentsDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	webhooks := service.NewStripeWebhookService(nil, nil, nil, nil, nil, nil)
	handler := NewWalletHandler(nil, webhooks)
	r.POST("/stripe/webhook", handler.StripeWebhook)

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMediaHandler_Upload_MissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &MediaHandler{}
	r.POST("/media", withUser(uuid.New(), models.RoleFreelancer), handler.Upload)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/media", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	r := gin.New()
	r.GET("/health", NewHealthHandler(sqlx.NewDb(db, "sqlmock"), nil, nil).Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["database"])
	_, hasRedis := resp.Checks["redis"]
	assert.False(t, hasRedis)
	assert.WithinDuration(t, time.Now(), resp.Timestamp, time.Minute)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(assert.AnError)

	r := gin.New()
	r.GET("/health", NewHealthHandler(sqlx.NewDb(db, "sqlmock"), nil, nil).Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
