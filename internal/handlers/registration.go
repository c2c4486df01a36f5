package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moltbook-governance/recruiter/internal/services"
	"github.com/moltbook-governance/recruiter/internal/storage"
)

// RegistrationHandler handles candidate registration requests
type RegistrationHandler struct {
	registrations *services.RegistrationService
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(registrations *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// Register handles registration submissions
func (h *RegistrationHandler) Register(c *gin.Context) {
	var payload services.SubmitPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	req, err := h.registrations.Submit(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "Registration submitted successfully",
		"registration_id": req.ID,
		"status":          req.Status,
	})
}

// Status handles registration status lookups by id
func (h *RegistrationHandler) Status(c *gin.Context) {
	req, err := h.registrations.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "registration not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"registration_id":  req.ID,
		"status":           req.Status,
		"username":         req.Username,
		"timestamp":        req.SubmittedAt,
		"rejection_reason": req.RejectionReason,
	})
}
