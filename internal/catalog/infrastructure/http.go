package infrastructure

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"go-storefront/internal/catalog/application"
	"go-storefront/internal/catalog/domain"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/middleware"
)

// HTTPHandler handles HTTP requests for the catalog
type HTTPHandler struct {
	useCase *application.ProductUseCase
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(useCase *application.ProductUseCase) *HTTPHandler {
	return &HTTPHandler{useCase: useCase}
}

// RegisterRoutes registers the product routes. authn must run before admin.
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup, authn, admin gin.HandlerFunc) {
	products := r.Group("/products")
	{
		products.GET("", h.ListProducts)
		products.GET("/top", h.TopProducts)
		products.GET("/categories", h.Categories)
		products.GET("/:id", h.GetProduct)
		products.POST("", authn, admin, h.CreateProduct)
		products.PUT("/:id", authn, admin, h.UpdateProduct)
		products.DELETE("/:id", authn, admin, h.DeleteProduct)
		products.POST("/:id/reviews", authn, h.CreateReview)
	}
}

// ProductRequest is the request body for creating or updating a product
type ProductRequest struct {
	Name         string          `json:"name" binding:"required"`
	Image        string          `json:"image"`
	Brand        string          `json:"brand"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price" swaggertype:"string" example:"99.90"`
	CountInStock int             `json:"count_in_stock" binding:"gte=0"`
}

// ReviewRequest is the request body for a review
type ReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"required"`
}

// ReviewResponse is a review as returned to clients
type ReviewResponse struct {
	ID        uint   `json:"id"`
	UserID    uint   `json:"user_id"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
}

// ProductResponse is the response body for product operations
type ProductResponse struct {
	ID            uint             `json:"id"`
	Name          string           `json:"name"`
	Image         string           `json:"image"`
	Brand         string           `json:"brand"`
	Category      string           `json:"category"`
	Description   string           `json:"description"`
	Price         string           `json:"price"`
	DiscountPrice *string          `json:"discount_price"`
	CountInStock  int              `json:"count_in_stock"`
	Rating        float64          `json:"rating"`
	NumReviews    int              `json:"num_reviews"`
	PromotionIDs  []uint           `json:"promotion_ids"`
	Reviews       []ReviewResponse `json:"reviews,omitempty"`
}

func toResponse(p *domain.Product) ProductResponse {
	resp := ProductResponse{
		ID:           p.ID,
		Name:         p.Name,
		Image:        p.Image,
		Brand:        p.Brand,
		Category:     p.Category,
		Description:  p.Description,
		Price:        p.Price.StringFixed(2),
		CountInStock: p.CountInStock,
		Rating:       p.Rating,
		NumReviews:   p.NumReviews,
		PromotionIDs: p.PromotionIDs,
	}
	if resp.PromotionIDs == nil {
		resp.PromotionIDs = []uint{}
	}
	if p.DiscountPrice != nil {
		s := p.DiscountPrice.StringFixed(2)
		resp.DiscountPrice = &s
	}
	for _, r := range p.Reviews {
		resp.Reviews = append(resp.Reviews, ReviewResponse{
			ID:        r.ID,
			UserID:    r.UserID,
			Name:      r.Name,
			Rating:    r.Rating,
			Comment:   r.Comment,
			CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return resp
}

func toResponses(products []*domain.Product) []ProductResponse {
	resp := make([]ProductResponse, len(products))
	for i, p := range products {
		resp[i] = toResponse(p)
	}
	return resp
}

// ListProducts handles GET /products
// @Summary List products
// @Tags products
// @Param keyword query string false "name filter"
// @Param category query string false "category filter"
// @Param page query int false "page number"
// @Success 200 {object} map[string]interface{}
// @Router /products [get]
func (h *HTTPHandler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	output, err := h.useCase.ListProducts(c.Request.Context(), application.ListProductsInput{
		Keyword:  c.Query("keyword"),
		Category: c.Query("category"),
		Page:     page,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponses(output.Products),
		"page":     output.Page,
		"pages":    output.Pages,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// TopProducts handles GET /products/top
// @Summary Top rated products
// @Tags products
// @Success 200 {object} map[string]interface{}
// @Router /products/top [get]
func (h *HTTPHandler) TopProducts(c *gin.Context) {
	products, err := h.useCase.TopProducts(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponses(products),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// Categories handles GET /products/categories
func (h *HTTPHandler) Categories(c *gin.Context) {
	categories, err := h.useCase.Categories(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	if categories == nil {
		categories = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     categories,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetProduct handles GET /products/:id
// @Summary Get a product
// @Tags products
// @Param id path int true "product id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} errors.ErrorResponse
// @Router /products/{id} [get]
func (h *HTTPHandler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	product, err := h.useCase.GetProduct(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(product),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// CreateProduct handles POST /products
func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	product, err := h.useCase.CreateProduct(c.Request.Context(), application.CreateProductInput{
		Name:         req.Name,
		Image:        req.Image,
		Brand:        req.Brand,
		Category:     req.Category,
		Description:  req.Description,
		Price:        req.Price,
		CountInStock: req.CountInStock,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":     toResponse(product),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// UpdateProduct handles PUT /products/:id
func (h *HTTPHandler) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	product, err := h.useCase.UpdateProduct(c.Request.Context(), application.UpdateProductInput{
		ID:           id,
		Name:         req.Name,
		Image:        req.Image,
		Brand:        req.Brand,
		Category:     req.Category,
		Description:  req.Description,
		Price:        req.Price,
		CountInStock: req.CountInStock,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(product),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// DeleteProduct handles DELETE /products/:id
func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.useCase.DeleteProduct(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CreateReview handles POST /products/:id/reviews
func (h *HTTPHandler) CreateReview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	review, err := h.useCase.CreateReview(c.Request.Context(), application.CreateReviewInput{
		ProductID: id,
		UserID:    middleware.CurrentUserID(c),
		UserName:  c.GetString(middleware.UserNameKey),
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": ReviewResponse{
			ID:        review.ID,
			UserID:    review.UserID,
			Name:      review.Name,
			Rating:    review.Rating,
			Comment:   review.Comment,
			CreatedAt: review.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.Error(errors.NewValidation("invalid "+param, nil))
		return 0, false
	}
	return uint(id), true
}
