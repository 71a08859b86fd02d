package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akovalyov/shop-backend/internal/models"
	"github.com/akovalyov/shop-backend/internal/mykafka"
	"github.com/akovalyov/shop-backend/internal/payment"
	"github.com/akovalyov/shop-backend/internal/service/checkout"
	"github.com/akovalyov/shop-backend/internal/service/token"
)

type OrderHandler struct {
	DB       *gorm.DB
	Checkout *checkout.Service
	Payments *payment.Client
	Producer *mykafka.Producer
}

type orderRequest struct {
	FirstName    string               `json:"first_name"`
	LastName     string               `json:"last_name"`
	PhoneNumber  string               `json:"phone_number"`
	Address      string               `json:"address"`
	City         string               `json:"city"`
	PaymentMode  string               `json:"payment_mode"`
	Items        []checkout.ItemInput `json:"items"`
	Card         string               `json:"card"`
	CardExpMonth string               `json:"card_exp_month"`
	CardExpYear  string               `json:"card_exp_year"`
	CardCVV      string               `json:"card_cvv"`
}

// Create is the checkout endpoint. Validation failures come back as a
// field-keyed error map with status 400; a committed order answers 201 with
// its number.
func (h *OrderHandler) Create(c echo.Context) error {
	var req orderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	in := checkout.Input{
		CustomerID:   token.CurrentUserID(c),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PhoneNumber:  req.PhoneNumber,
		Address:      req.Address,
		City:         req.City,
		PaymentMode:  models.PaymentMode(req.PaymentMode),
		Items:        req.Items,
		Card:         req.Card,
		CardExpMonth: req.CardExpMonth,
		CardExpYear:  req.CardExpYear,
		CardCVV:      req.CardCVV,
	}

	order, fieldErrs, err := h.Checkout.Create(c.Request().Context(), in)
	if err != nil {
		c.Logger().Errorf("checkout failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create order")
	}
	if len(fieldErrs) > 0 {
		return c.JSON(http.StatusBadRequest, fieldErrs)
	}

	return c.JSON(http.StatusCreated, echo.Map{"order_number": order.ID})
}

// Detail returns an order with its items to the owning customer, or to an
// admin. Anything else is a 404, not a 403, so order ids stay unguessable.
func (h *OrderHandler) Detail(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.DB.Preload("Items").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if token.CurrentRole(c) != "admin" {
		userID := token.CurrentUserID(c)
		if userID == nil || order.CustomerID == nil || *order.CustomerID != *userID {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
	}

	return c.JSON(http.StatusOK, order)
}

// List returns the authenticated customer's orders; admins see everything.
func (h *OrderHandler) List(c echo.Context) error {
	userID := token.CurrentUserID(c)
	if userID == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "login required")
	}

	qs := h.DB.Preload("Items").Order("created_at DESC")
	if token.CurrentRole(c) != "admin" {
		qs = qs.Where("customer_id = ?", *userID)
	}

	var orders []models.Order
	if err := qs.Find(&orders).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orders)
}

// PayCallback receives the payment gateway's asynchronous outcome report. The
// signature is verified before anything is decoded or written, and the whole
// handler is idempotent: the gateway retries deliveries.
func (h *OrderHandler) PayCallback(c echo.Context) error {
	var req struct {
		Data      string `json:"data"`
		Signature string `json:"signature"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	payload, err := h.Payments.VerifyCallback(req.Data, req.Signature)
	if err != nil {
		if errors.Is(err, payment.ErrSignatureMismatch) {
			c.Logger().Warnf("payment callback signature mismatch, data %q", req.Data)
			return c.JSON(http.StatusBadRequest, echo.Map{"signature": err.Error()})
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	orderID, err := strconv.ParseUint(payload.OrderID, 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Order not found")
	}

	var order models.Order
	if err := h.DB.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	status := models.PaymentStatus(payload.Status)
	if !status.Recognized() {
		status = models.PaymentStatusUnknown
	}
	order.PaymentStatus = status
	if err := h.DB.Save(&order).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Upsert keeps the one-to-one audit row intact on retried callbacks.
	data := models.PaymentData{OrderID: order.ID, Data: string(payload.Raw)}
	err = h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(&data).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.Producer != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		event := map[string]any{
			"type":    "payment_status_updated",
			"orderID": order.ID,
			"status":  order.PaymentStatus,
		}
		if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(order.ID), event); err != nil {
			c.Logger().Errorf("Kafka publish error: %v", err)
		}
	}

	return c.NoContent(http.StatusNoContent)
}
