package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/moltbook-governance/recruiter/internal/config"
	"github.com/moltbook-governance/recruiter/internal/middleware"
	"github.com/moltbook-governance/recruiter/internal/models"
	"github.com/moltbook-governance/recruiter/internal/services"
	"github.com/moltbook-governance/recruiter/internal/storage"
)

// AdminHandler handles the reviewer console: login and manual-review decisions
type AdminHandler struct {
	registrations *services.RegistrationService
	store         storage.Store
	admin         config.AdminConfig
	jwtConfig     middleware.JWTConfig
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(registrations *services.RegistrationService, store storage.Store, admin config.AdminConfig) *AdminHandler {
	return &AdminHandler{
		registrations: registrations,
		store:         store,
		admin:         admin,
		jwtConfig: middleware.JWTConfig{
			Secret:     admin.JWTSecret,
			Expiration: 24 * time.Hour,
		},
	}
}

// LoginRequest represents a reviewer login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a reviewer and issues a JWT
func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Username != h.admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := middleware.GenerateToken(req.Username, h.jwtConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviewer": req.Username, "token": token})
}

// ListReviews handles listing the manual-review queue
func (h *AdminHandler) ListReviews(c *gin.Context) {
	reviews, err := h.store.ListRequestsByStatus(c.Request.Context(), models.RequestManualReview)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

// DecisionRequest represents a manual-review decision
type DecisionRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// Decide handles a reviewer's approve/reject decision on a queued request
func (h *AdminHandler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.registrations.Decide(c.Request.Context(), c.Param("id"), *req.Approve, middleware.GetReviewer(c))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrAlreadyApproved):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"registration_id": result.ID,
		"status":          result.Status,
		"reviewer":        result.Reviewer,
	})
}
