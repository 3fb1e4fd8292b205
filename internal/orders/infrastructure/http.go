package infrastructure

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"go-storefront/internal/orders/application"
	"go-storefront/internal/orders/domain"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/middleware"
	"go-storefront/pkg/money"
)

// HTTPHandler handles HTTP requests for orders
type HTTPHandler struct {
	useCase *application.OrderUseCase
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(useCase *application.OrderUseCase) *HTTPHandler {
	return &HTTPHandler{useCase: useCase}
}

// RegisterRoutes registers the order routes; every route needs a signed-in user
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup, authn, admin gin.HandlerFunc) {
	orders := r.Group("/orders", authn)
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/mine", h.ListMyOrders)
		orders.GET("", admin, h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PUT("/:id/pay", h.ConfirmPayment)
		orders.PUT("/:id/deliver", admin, h.MarkDelivered)
		orders.DELETE("/:id/cancel", h.CancelOrder)
		orders.DELETE("/:id", admin, h.DeleteOrder)
	}
}

// OrderItemRequest is one requested product
type OrderItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// ShippingAddressDTO is the shipping address on the wire
type ShippingAddressDTO struct {
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

// CreateOrderRequest is the request body for creating an order
type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest `json:"order_items" binding:"required"`
	ShippingAddress ShippingAddressDTO `json:"shipping_address" binding:"required"`
	PaymentMethod   string             `json:"payment_method" binding:"required"`
}

// PayerDTO identifies who paid
type PayerDTO struct {
	EmailAddress string `json:"email_address"`
}

// ConfirmPaymentRequest mirrors the provider's capture response
type ConfirmPaymentRequest struct {
	ID         string          `json:"id" binding:"required"`
	Status     string          `json:"status"`
	UpdateTime string          `json:"update_time"`
	Amount     decimal.Decimal `json:"amount" swaggertype:"string" example:"125.00"`
	Payer      PayerDTO        `json:"payer"`
}

// OrderLineResponse is an order line as returned to clients
type OrderLineResponse struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// PaymentResultResponse is the stored payment report
type PaymentResultResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

// OrderResponse is the response body for order operations
type OrderResponse struct {
	ID              uint                   `json:"id"`
	UserID          uint                   `json:"user_id"`
	Status          string                 `json:"status"`
	OrderItems      []OrderLineResponse    `json:"order_items"`
	ShippingAddress ShippingAddressDTO     `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	ItemsPrice      string                 `json:"items_price"`
	TaxPrice        string                 `json:"tax_price"`
	ShippingPrice   string                 `json:"shipping_price"`
	TotalPrice      string                 `json:"total_price"`
	IsPaid          bool                   `json:"is_paid"`
	PaidAt          *time.Time             `json:"paid_at"`
	PaymentResult   *PaymentResultResponse `json:"payment_result,omitempty"`
	IsDelivered     bool                   `json:"is_delivered"`
	DeliveredAt     *time.Time             `json:"delivered_at"`
	IsExpired       bool                   `json:"is_expired"`
	CreatedAt       time.Time              `json:"created_at"`
}

func toResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:     o.ID,
		UserID: o.UserID,
		Status: string(o.Status()),
		ShippingAddress: ShippingAddressDTO{
			Address:    o.ShippingAddress.Address,
			City:       o.ShippingAddress.City,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		PaymentMethod: o.PaymentMethod,
		ItemsPrice:    money.Format(o.ItemsPrice),
		TaxPrice:      money.Format(o.TaxPrice),
		ShippingPrice: money.Format(o.ShippingPrice),
		TotalPrice:    money.Format(o.TotalPrice),
		IsPaid:        o.IsPaid,
		PaidAt:        o.PaidAt,
		IsDelivered:   o.IsDelivered,
		DeliveredAt:   o.DeliveredAt,
		IsExpired:     o.IsExpired,
		CreatedAt:     o.CreatedAt,
	}
	resp.OrderItems = make([]OrderLineResponse, len(o.Lines))
	for i, line := range o.Lines {
		resp.OrderItems[i] = OrderLineResponse{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Quantity:  line.Quantity,
			Price:     money.Format(line.Price),
		}
	}
	if p := o.PaymentResult; p != nil {
		resp.PaymentResult = &PaymentResultResponse{
			ID:           p.TransactionID,
			Status:       p.Status,
			UpdateTime:   p.UpdateTime,
			EmailAddress: p.EmailAddress,
		}
	}
	return resp
}

func toResponses(orders []*domain.Order) []OrderResponse {
	resp := make([]OrderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toResponse(o)
	}
	return resp
}

// CreateOrder handles POST /orders
// @Summary Create an order from cart items
// @Tags orders
// @Param request body CreateOrderRequest true "order"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /orders [post]
func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	items := make([]application.OrderItemInput, len(req.OrderItems))
	for i, item := range req.OrderItems {
		items[i] = application.OrderItemInput{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	output, err := h.useCase.CreateOrder(c.Request.Context(), application.CreateOrderInput{
		UserID: middleware.CurrentUserID(c),
		Items:  items,
		ShippingAddress: domain.ShippingAddress{
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":     toResponse(output.Order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ListMyOrders handles GET /orders/mine
func (h *HTTPHandler) ListMyOrders(c *gin.Context) {
	orders, err := h.useCase.ListMyOrders(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponses(orders),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ListOrders handles GET /orders
func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.useCase.ListOrders(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponses(orders),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetOrder handles GET /orders/:id
// @Summary Get an order
// @Tags orders
// @Param id path int true "order id"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /orders/{id} [get]
func (h *HTTPHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	output, err := h.useCase.GetOrder(c.Request.Context(), application.GetOrderInput{
		ID:      id,
		UserID:  middleware.CurrentUserID(c),
		IsAdmin: middleware.IsAdmin(c),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(output.Order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ConfirmPayment handles PUT /orders/:id/pay
// @Summary Confirm payment of an order
// @Tags orders
// @Param id path int true "order id"
// @Param request body ConfirmPaymentRequest true "payment report"
// @Success 200 {object} map[string]interface{}
// @Failure 402 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /orders/{id}/pay [put]
func (h *HTTPHandler) ConfirmPayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	order, err := h.useCase.ConfirmPayment(c.Request.Context(), application.ConfirmPaymentInput{
		OrderID:       id,
		TransactionID: req.ID,
		ClaimedAmount: req.Amount,
		PayerEmail:    req.Payer.EmailAddress,
		Status:        req.Status,
		UpdateTime:    req.UpdateTime,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// MarkDelivered handles PUT /orders/:id/deliver
func (h *HTTPHandler) MarkDelivered(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	order, err := h.useCase.MarkDelivered(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// CancelOrder handles DELETE /orders/:id/cancel
func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.useCase.CancelOrder(c.Request.Context(), id, middleware.CurrentUserID(c)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "order cancelled and stock restored",
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// DeleteOrder handles DELETE /orders/:id
func (h *HTTPHandler) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.useCase.DeleteOrder(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "order deleted and stock restored",
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.Error(errors.NewValidation("invalid order id", nil))
		return 0, false
	}
	return uint(id), true
}
