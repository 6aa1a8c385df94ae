package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dinepay/internal/models"
)

type OrderHandler struct {
	db *gorm.DB
}

func NewOrderHandler(db *gorm.DB) *OrderHandler {
	return &OrderHandler{db: db}
}

type orderItemRequest struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type createOrderRequest struct {
	OrderNumber string             `json:"order_number"`
	TableName   string             `json:"table_name"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	TaxAmount   decimal.Decimal    `json:"tax_amount"`
	ServiceFee  decimal.Decimal    `json:"service_fee"`
	TipAmount   decimal.Decimal    `json:"tip_amount"`
	Currency    string             `json:"currency"`
	Items       []orderItemRequest `json:"items"`
}

// CreateOrder registers an order so payments can be taken against it. The
// ordering system pushes these over; totals are taken as given.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OrderNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order_number is required")
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	order := models.Order{
		OrderNumber:  req.OrderNumber,
		TableName:    req.TableName,
		Subtotal:     req.Subtotal,
		TaxAmount:    req.TaxAmount,
		ServiceFee:   req.ServiceFee,
		TipAmount:    req.TipAmount,
		TotalAmount:  req.Subtotal.Add(req.TaxAmount).Add(req.ServiceFee).Add(req.TipAmount),
		Currency:     req.Currency,
		PaymentState: models.OrderUnpaid,
	}
	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		order.Items = append(order.Items, models.OrderItem{
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  quantity,
		})
	}

	if err := h.db.WithContext(c.Request().Context()).Create(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return echo.NewHTTPError(http.StatusConflict, "order number already exists")
		}
		return err
	}
	return c.JSON(http.StatusCreated, order)
}

// GetOrder returns an order with its items and payments.
func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var order models.Order
	err = h.db.WithContext(c.Request().Context()).
		Preload("Items").
		Preload("Payments").
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, order)
}

// ListOrders returns orders filtered by payment state, newest first.
func (h *OrderHandler) ListOrders(c echo.Context) error {
	query := h.db.WithContext(c.Request().Context()).Order("created_at desc").Limit(100)
	if state := c.QueryParam("payment_state"); state != "" {
		query = query.Where("payment_state = ?", state)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orders)
}
