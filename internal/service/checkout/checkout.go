package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"gorm.io/gorm"

	"github.com/akovalyov/shop-backend/internal/models"
	"github.com/akovalyov/shop-backend/internal/mykafka"
	"github.com/akovalyov/shop-backend/internal/payment"
)

const blankFieldMessage = "This field may not be blank."

var (
	cvvPattern    = regexp.MustCompile(`^[0-9]{3}$`)
	expiryPattern = regexp.MustCompile(`^[0-9]{2}$`)
)

// Notifier delivers a human-readable message about a new order. Failures are
// logged, never surfaced to the customer.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// CardCharger initiates a card authorization at the payment gateway.
type CardCharger interface {
	AuthorizeCard(ctx context.Context, req payment.CardRequest) (map[string]any, error)
}

type ItemInput struct {
	ProductID uint `json:"product"`
	Quantity  uint `json:"quantity"`
}

type Input struct {
	CustomerID   *uint
	FirstName    string
	LastName     string
	PhoneNumber  string
	Address      string
	City         string
	PaymentMode  models.PaymentMode
	Items        []ItemInput
	Card         string
	CardExpMonth string
	CardExpYear  string
	CardCVV      string
}

type Service struct {
	DB       *gorm.DB
	Notifier Notifier
	Payments CardCharger
	Producer *mykafka.Producer
	Log      *slog.Logger
}

// Create validates the checkout input, snapshots costs from live product
// prices, persists the order and its items in one transaction and then fires
// the post-commit side effects. A non-nil field map means validation failed;
// err is reserved for unexpected failures.
func (s *Service) Create(ctx context.Context, in Input) (*models.Order, map[string]string, error) {
	products, fieldErrs, err := s.loadProducts(in.Items)
	if err != nil {
		return nil, nil, err
	}
	for field, msg := range s.validate(in) {
		fieldErrs[field] = msg
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs, nil
	}

	order := models.Order{
		CustomerID:  in.CustomerID,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PhoneNumber: in.PhoneNumber,
		Address:     in.Address,
		City:        in.City,
		PaymentMode: in.PaymentMode,
	}

	if in.CustomerID != nil {
		var customer models.User
		if err := s.DB.First(&customer, *in.CustomerID).Error; err != nil {
			return nil, nil, fmt.Errorf("load customer: %w", err)
		}
		order.FirstName = customer.FirstName
		order.LastName = customer.LastName
		order.PhoneNumber = customer.PhoneNumber
	}

	// Costs are computed from live prices before the insert and stored
	// immutably on the order and each item.
	items := make([]models.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		p := products[it.ProductID]
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		cost := p.EffectivePrice() * float64(qty)
		items = append(items, models.OrderItem{
			ProductID:     p.ID,
			Price:         p.Price,
			DiscountPrice: p.DiscountPrice,
			Quantity:      qty,
			Cost:          cost,
		})
		order.TotalCost += cost
	}

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		return nil, nil, fmt.Errorf("create order: %w", txErr)
	}
	order.Items = items

	s.afterCommit(ctx, &order, in)
	return &order, nil, nil
}

// afterCommit runs the side effects that must never roll back a committed
// order: notification, event publishing and card authorization. Each failure
// is logged and swallowed; a silently failed authorization is resolved later
// by the gateway callback.
func (s *Service) afterCommit(ctx context.Context, order *models.Order, in Input) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	if s.Notifier != nil {
		msg := fmt.Sprintf("Order #%d number phone client %s", order.ID, order.PhoneNumber)
		if err := s.Notifier.Notify(ctx, msg); err != nil {
			log.Error("order notification failed", "order_id", order.ID, "error", err)
		}
	}

	if s.Producer != nil {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		event := map[string]any{
			"type":       "order_created",
			"orderID":    order.ID,
			"total_cost": order.TotalCost,
		}
		if err := s.Producer.PublishEvent(pubCtx, "order_events", fmt.Sprint(order.ID), event); err != nil {
			log.Error("order event publish failed", "order_id", order.ID, "error", err)
		}
	}

	if order.PaymentMode == models.PaymentModeCard && s.Payments != nil {
		_, err := s.Payments.AuthorizeCard(ctx, payment.CardRequest{
			OrderID:  order.ID,
			Amount:   order.TotalCost,
			Phone:    order.PhoneNumber,
			Number:   in.Card,
			ExpMonth: in.CardExpMonth,
			ExpYear:  in.CardExpYear,
			CVV:      in.CardCVV,
		})
		if err != nil {
			log.Error("card authorization failed", "order_id", order.ID, "error", err)
		}
	}
}

// loadProducts resolves every line item to an existing product. Missing
// products are a validation error, not an internal one.
func (s *Service) loadProducts(items []ItemInput) (map[uint]models.Product, map[string]string, error) {
	fieldErrs := map[string]string{}
	if len(items) == 0 {
		fieldErrs["items"] = blankFieldMessage
		return nil, fieldErrs, nil
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	var prods []models.Product
	if err := s.DB.Where("id IN ?", ids).Find(&prods).Error; err != nil {
		return nil, nil, fmt.Errorf("load products: %w", err)
	}

	byID := make(map[uint]models.Product, len(prods))
	for _, p := range prods {
		byID[p.ID] = p
	}
	for _, it := range items {
		if _, ok := byID[it.ProductID]; !ok {
			fieldErrs["items"] = fmt.Sprintf("Product %d does not exist.", it.ProductID)
		}
	}
	return byID, fieldErrs, nil
}

func (s *Service) validate(in Input) map[string]string {
	errs := map[string]string{}

	if in.CustomerID == nil {
		if in.FirstName == "" {
			errs["first_name"] = blankFieldMessage
		}
		if in.LastName == "" {
			errs["last_name"] = blankFieldMessage
		}
		if in.PhoneNumber == "" {
			errs["phone_number"] = blankFieldMessage
		}
	}

	switch in.PaymentMode {
	case models.PaymentModeCash:
	case models.PaymentModeCard:
		validateCardFields(in, errs)
	default:
		errs["payment_mode"] = "Must be one of: cash, card."
	}

	return errs
}

func validateCardFields(in Input, errs map[string]string) {
	if in.Card == "" {
		errs["card"] = blankFieldMessage
	} else if err := payment.ValidateCard(in.Card); err != nil {
		errs["card"] = err.Error()
	}

	if in.CardExpMonth == "" {
		errs["card_exp_month"] = blankFieldMessage
	} else if !expiryPattern.MatchString(in.CardExpMonth) {
		errs["card_exp_month"] = "Must be a 2-digit number."
	}

	if in.CardExpYear == "" {
		errs["card_exp_year"] = blankFieldMessage
	} else if !expiryPattern.MatchString(in.CardExpYear) {
		errs["card_exp_year"] = "Must be a 2-digit number."
	}

	if in.CardCVV == "" {
		errs["card_cvv"] = blankFieldMessage
	} else if !cvvPattern.MatchString(in.CardCVV) {
		errs["card_cvv"] = "Must be exactly 3 digits."
	}
}
