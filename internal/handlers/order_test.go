package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/akovalyov/shop-backend/internal/models"
	"github.com/akovalyov/shop-backend/internal/payment"
	"github.com/akovalyov/shop-backend/internal/service/checkout"
)

type orderEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB
	H  *OrderHandler
}

func newOrderEnv(t *testing.T) *orderEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	payClient := payment.NewClient("test_public", "test_private", "https://shop.example/order/paycallback", nil)
	h := &OrderHandler{
		DB:       db,
		Checkout: &checkout.Service{DB: db},
		Payments: payClient,
	}
	return &orderEnv{T: t, E: echo.New(), DB: db, H: h}
}

func (env *orderEnv) doJSONRequest(method, path string, body interface{}) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

func (env *orderEnv) seedOrder() models.Order {
	order := models.Order{
		FirstName:   "Olha",
		LastName:    "Kovalenko",
		PhoneNumber: "+380501112233",
		Address:     "Khreshchatyk 1",
		City:        "Kyiv",
		PaymentMode: models.PaymentModeCard,
		TotalCost:   310,
	}
	require.NoError(env.T, env.DB.Create(&order).Error)
	return order
}

func callbackBody(t *testing.T, client *payment.Client, payload map[string]any) map[string]string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data := base64.StdEncoding.EncodeToString(raw)
	return map[string]string{"data": data, "signature": client.Sign(data)}
}

func TestPayCallbackSuccess(t *testing.T) {
	env := newOrderEnv(t)
	order := env.seedOrder()

	body := callbackBody(t, env.H.Payments, map[string]any{
		"order_id": "1",
		"status":   "success",
	})
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/order/paycallback", body)
	require.NoError(t, env.H.PayCallback(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var stored models.Order
	require.NoError(t, env.DB.First(&stored, order.ID).Error)
	require.Equal(t, models.PaymentStatusSuccess, stored.PaymentStatus)
	require.True(t, stored.Paid)

	var count int64
	require.NoError(t, env.DB.Model(&models.PaymentData{}).Where("order_id = ?", order.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestPayCallbackIsIdempotent(t *testing.T) {
	env := newOrderEnv(t)
	order := env.seedOrder()

	body := callbackBody(t, env.H.Payments, map[string]any{
		"order_id": "1",
		"status":   "success",
	})

	for i := 0; i < 2; i++ {
		rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/order/paycallback", body)
		require.NoError(t, env.H.PayCallback(c))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	var stored models.Order
	require.NoError(t, env.DB.First(&stored, order.ID).Error)
	require.Equal(t, models.PaymentStatusSuccess, stored.PaymentStatus)
	require.True(t, stored.Paid)

	var count int64
	require.NoError(t, env.DB.Model(&models.PaymentData{}).Where("order_id = ?", order.ID).Count(&count).Error)
	require.Equal(t, int64(1), count, "retried callback must not duplicate the audit row")
}

func TestPayCallbackTamperedSignature(t *testing.T) {
	env := newOrderEnv(t)
	order := env.seedOrder()

	body := callbackBody(t, env.H.Payments, map[string]any{
		"order_id": "1",
		"status":   "success",
	})
	body["signature"] = "tampered" + body["signature"]

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/order/paycallback", body)
	require.NoError(t, env.H.PayCallback(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp["signature"], "signature mismatch")

	// No state change of any kind.
	var stored models.Order
	require.NoError(t, env.DB.First(&stored, order.ID).Error)
	require.Equal(t, models.PaymentStatusUnknown, stored.PaymentStatus)
	require.False(t, stored.Paid)

	var count int64
	require.NoError(t, env.DB.Model(&models.PaymentData{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPayCallbackUnknownOrder(t *testing.T) {
	env := newOrderEnv(t)

	body := callbackBody(t, env.H.Payments, map[string]any{
		"order_id": "999",
		"status":   "success",
	})
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/order/paycallback", body)

	err := env.H.PayCallback(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, he.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.PaymentData{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPayCallbackUnrecognizedStatus(t *testing.T) {
	env := newOrderEnv(t)
	order := env.seedOrder()

	// Drive the order to success first, then deliver garbage: the status
	// must reset to unknown and the paid flag must follow.
	body := callbackBody(t, env.H.Payments, map[string]any{"order_id": "1", "status": "success"})
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/order/paycallback", body)
	require.NoError(t, env.H.PayCallback(c))

	body = callbackBody(t, env.H.Payments, map[string]any{"order_id": "1", "status": "paid-in-dogecoin"})
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/order/paycallback", body)
	require.NoError(t, env.H.PayCallback(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var stored models.Order
	require.NoError(t, env.DB.First(&stored, order.ID).Error)
	require.Equal(t, models.PaymentStatusUnknown, stored.PaymentStatus)
	require.False(t, stored.Paid)
}

func TestCreateOrderEndpoint(t *testing.T) {
	env := newOrderEnv(t)

	cat := models.Category{Name: "Electronics", Slug: "electronics"}
	require.NoError(t, env.DB.Create(&cat).Error)
	prod := models.Product{CategoryID: cat.ID, Name: "Laptop", Slug: "laptop", Price: 100, IsPublished: true}
	require.NoError(t, env.DB.Create(&prod).Error)

	body := map[string]any{
		"first_name":   "Olha",
		"last_name":    "Kovalenko",
		"phone_number": "+380501112233",
		"address":      "Khreshchatyk 1",
		"city":         "Kyiv",
		"payment_mode": "cash",
		"items":        []map[string]any{{"product": prod.ID, "quantity": 2}},
	}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/order", body)
	require.NoError(t, env.H.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]uint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotZero(t, resp["order_number"])
}

func TestCreateOrderEndpointEmptyItems(t *testing.T) {
	env := newOrderEnv(t)

	body := map[string]any{
		"first_name":   "Olha",
		"last_name":    "Kovalenko",
		"phone_number": "+380501112233",
		"address":      "Khreshchatyk 1",
		"city":         "Kyiv",
		"payment_mode": "cash",
		"items":        []map[string]any{},
	}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/order", body)
	require.NoError(t, env.H.Create(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp, "items")

	var count int64
	require.NoError(t, env.DB.Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
}
