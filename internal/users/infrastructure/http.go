package infrastructure

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go-storefront/internal/users/application"
	"go-storefront/internal/users/domain"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/middleware"
)

// HTTPHandler handles HTTP requests for users
type HTTPHandler struct {
	useCase *application.UserUseCase
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(useCase *application.UserUseCase) *HTTPHandler {
	return &HTTPHandler{useCase: useCase}
}

// RegisterRoutes registers the user routes
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup, authn, admin gin.HandlerFunc) {
	users := r.Group("/users")
	{
		users.POST("", h.Register)
		users.POST("/login", h.Login)
		users.PUT("/forgot-password", h.ForgotPassword)
		users.PUT("/reset-password", h.ResetPassword)
		users.GET("/profile", authn, h.GetProfile)
		users.PUT("/profile", authn, h.UpdateProfile)
		users.GET("", authn, admin, h.ListUsers)
		users.GET("/:id", authn, admin, h.GetUser)
		users.PUT("/:id", authn, admin, h.UpdateUser)
		users.DELETE("/:id", authn, admin, h.DeleteUser)
	}
}

// RegisterRequest is the request body for creating an account
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest is the request body for signing in
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest carries optional profile changes
type UpdateProfileRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUserRequest carries an admin's changes to an account
type UpdateUserRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// ForgotPasswordRequest names the account to reset
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest is the request body for a password reset
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UserResponse is the response body for user operations
type UserResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

// AuthResponse is a user with their access token
type AuthResponse struct {
	UserResponse
	Token string `json:"token"`
}

func toResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// Register handles POST /users
// @Summary Register a customer account
// @Tags users
// @Param request body RegisterRequest true "account"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} errors.ErrorResponse
// @Router /users [post]
func (h *HTTPHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.useCase.Register(c.Request.Context(), application.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":     AuthResponse{UserResponse: toResponse(output.User), Token: output.Token},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// Login handles POST /users/login
// @Summary Sign in and receive an access token
// @Tags users
// @Param request body LoginRequest true "credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/login [post]
func (h *HTTPHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.useCase.Login(c.Request.Context(), application.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     AuthResponse{UserResponse: toResponse(output.User), Token: output.Token},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetProfile handles GET /users/profile
func (h *HTTPHandler) GetProfile(c *gin.Context) {
	output, err := h.useCase.GetUser(c.Request.Context(), application.GetUserInput{
		ID: middleware.CurrentUserID(c),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(output.User),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// UpdateProfile handles PUT /users/profile
func (h *HTTPHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	user, err := h.useCase.UpdateProfile(c.Request.Context(), application.UpdateProfileInput{
		ID:       middleware.CurrentUserID(c),
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(user),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ListUsers handles GET /users
func (h *HTTPHandler) ListUsers(c *gin.Context) {
	users, err := h.useCase.ListUsers(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i, u := range users {
		resp[i] = toResponse(u)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     resp,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetUser handles GET /users/:id
func (h *HTTPHandler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	output, err := h.useCase.GetUser(c.Request.Context(), application.GetUserInput{ID: id})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(output.User),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// UpdateUser handles PUT /users/:id
func (h *HTTPHandler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	user, err := h.useCase.UpdateUser(c.Request.Context(), application.UpdateUserInput{
		ID:      id,
		Name:    req.Name,
		Email:   req.Email,
		IsAdmin: req.IsAdmin,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toResponse(user),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// DeleteUser handles DELETE /users/:id
func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.useCase.DeleteUser(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "user deleted",
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ForgotPassword handles PUT /users/forgot-password. The token itself only
// travels on the event bus to the mailer.
func (h *HTTPHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.useCase.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "password reset link sent",
		"expires_at": output.ExpiresAt.Format(time.RFC3339),
		"trace_id":   c.GetString(middleware.TraceIDKey),
	})
}

// ResetPassword handles PUT /users/reset-password
func (h *HTTPHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	err := h.useCase.ResetPassword(c.Request.Context(), application.ResetPasswordInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "password reset",
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.Error(errors.NewValidation("invalid user id", nil))
		return 0, false
	}
	return uint(id), true
}
