package infrastructure

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"go-storefront/internal/promotions/application"
	"go-storefront/internal/promotions/domain"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/middleware"
)

// Defaults applied when a create request leaves them out
var (
	defaultDiscount     = decimal.NewFromInt(20)
	defaultDurationDays = 7
)

// HTTPHandler handles HTTP requests for promotions
type HTTPHandler struct {
	engine *application.Engine
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(engine *application.Engine) *HTTPHandler {
	return &HTTPHandler{engine: engine}
}

// RegisterRoutes registers the promotion routes. Listing is public.
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup, authn, admin gin.HandlerFunc) {
	promotions := r.Group("/promotions")
	{
		promotions.GET("", h.ListPromotions)
		promotions.POST("", authn, admin, h.CreatePromotion)
		promotions.GET("/:id", authn, admin, h.GetPromotion)
		promotions.PUT("/:id", authn, admin, h.UpdatePromotion)
		promotions.DELETE("/:id", authn, admin, h.DeletePromotion)
		promotions.PUT("/:id/toggle", authn, admin, h.TogglePromotion)
		promotions.PUT("/:id/products", authn, admin, h.AddProduct)
		promotions.DELETE("/:id/products/:productId", authn, admin, h.RemoveProduct)
	}
}

// CreatePromotionRequest is the request body for creating a promotion
type CreatePromotionRequest struct {
	Name               string           `json:"name" binding:"required"`
	Description        string           `json:"description"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage" swaggertype:"string" example:"20"`
	DurationDays       *int             `json:"duration_days" example:"7"`
	ProductIDs         []uint           `json:"product_ids"`
}

// UpdatePromotionRequest is the request body for updating a promotion
type UpdatePromotionRequest struct {
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage" swaggertype:"string"`
	DurationDays       *int             `json:"duration_days"`
}

// ProductRequest names a product to associate
type ProductRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
}

// PromotionResponse is the response body for promotion operations
type PromotionResponse struct {
	ID                 uint    `json:"id"`
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	DiscountPercentage string  `json:"discount_percentage"`
	Active             bool    `json:"active"`
	StartDate          *string `json:"start_date"`
	EndDate            *string `json:"end_date"`
	DurationDays       int     `json:"duration_days"`
	ProductIDs         []uint  `json:"product_ids"`
	CreatedAt          string  `json:"created_at"`
}

func toResponse(p *domain.Promotion) PromotionResponse {
	resp := PromotionResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		DiscountPercentage: p.DiscountPercentage.String(),
		Active:             p.Active,
		StartDate:          formatTime(p.StartDate),
		EndDate:            formatTime(p.EndDate),
		DurationDays:       p.DurationDays,
		ProductIDs:         p.ProductIDs,
		CreatedAt:          p.CreatedAt.Format(time.RFC3339),
	}
	if resp.ProductIDs == nil {
		resp.ProductIDs = []uint{}
	}
	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// ListPromotions handles GET /promotions
// @Summary List promotions
// @Tags promotions
// @Success 200 {object} map[string]interface{}
// @Router /promotions [get]
func (h *HTTPHandler) ListPromotions(c *gin.Context) {
	promotions, err := h.engine.ListPromotions(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	resp := make([]PromotionResponse, len(promotions))
	for i, p := range promotions {
		resp[i] = toResponse(p)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     resp,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// CreatePromotion handles POST /promotions
// @Summary Create an inactive promotion
// @Tags promotions
// @Param request body CreatePromotionRequest true "promotion"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Router /promotions [post]
func (h *HTTPHandler) CreatePromotion(c *gin.Context) {
	var req CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	input := application.CreatePromotionInput{
		Name:               req.Name,
		Description:        req.Description,
		DiscountPercentage: defaultDiscount,
		DurationDays:       defaultDurationDays,
		ProductIDs:         req.ProductIDs,
	}
	if req.DiscountPercentage != nil {
		input.DiscountPercentage = *req.DiscountPercentage
	}
	if req.DurationDays != nil {
		input.DurationDays = *req.DurationDays
	}

	promotion, err := h.engine.CreatePromotion(c.Request.Context(), input)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":     toResponse(promotion),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetPromotion handles GET /promotions/:id
func (h *HTTPHandler) GetPromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	promotion, err := h.engine.GetPromotion(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(promotion),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// UpdatePromotion handles PUT /promotions/:id
func (h *HTTPHandler) UpdatePromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	promotion, err := h.engine.UpdatePromotion(c.Request.Context(), application.UpdatePromotionInput{
		ID:                 id,
		Name:               req.Name,
		Description:        req.Description,
		DiscountPercentage: req.DiscountPercentage,
		DurationDays:       req.DurationDays,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(promotion),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// TogglePromotion handles PUT /promotions/:id/toggle
// @Summary Activate or deactivate a promotion
// @Tags promotions
// @Param id path int true "promotion id"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} errors.ErrorResponse
// @Router /promotions/{id}/toggle [put]
func (h *HTTPHandler) TogglePromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	promotion, err := h.engine.TogglePromotion(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(promotion),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// AddProduct handles PUT /promotions/:id/products
func (h *HTTPHandler) AddProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	promotion, err := h.engine.AddProduct(c.Request.Context(), id, req.ProductID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(promotion),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// RemoveProduct handles DELETE /promotions/:id/products/:productId
func (h *HTTPHandler) RemoveProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	productID, ok := parseID(c, "productId")
	if !ok {
		return
	}

	promotion, err := h.engine.RemoveProduct(c.Request.Context(), id, productID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(promotion),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// DeletePromotion handles DELETE /promotions/:id
func (h *HTTPHandler) DeletePromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.DeletePromotion(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.Error(errors.NewValidation("invalid "+param, nil))
		return 0, false
	}
	return uint(id), true
}
