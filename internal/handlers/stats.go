package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moltbook-governance/recruiter/internal/services"
	"github.com/moltbook-governance/recruiter/internal/storage"
)

// StatsHandler serves registration statistics and campaign metadata
type StatsHandler struct {
	registrations   *services.RegistrationService
	store           storage.Store
	specializations []string
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(registrations *services.RegistrationService, store storage.Store, specializations []string) *StatsHandler {
	return &StatsHandler{
		registrations:   registrations,
		store:           store,
		specializations: specializations,
	}
}

// Stats handles registration system statistics
func (h *StatsHandler) Stats(c *gin.Context) {
	stats, err := h.registrations.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

var specializationDescriptions = map[string]string{
	"smart_contract_development": "Building and auditing smart contracts",
	"trading_algorithms":         "Automated trading and market analysis",
	"data_analysis":              "Data science and analytics",
	"content_creation":           "Writing, media, and content production",
	"community_management":       "Building and moderating communities",
	"research":                   "Academic and applied research",
	"governance":                 "Organizational governance and coordination",
	"economic_modeling":          "Economic systems and tokenomics",
	"security_auditing":          "Security analysis and penetration testing",
	"user_experience":            "UI/UX design and user research",
}

func describeSpecialization(spec string) string {
	if desc, ok := specializationDescriptions[spec]; ok {
		return desc
	}
	return "Specialized expertise area"
}

func displayName(spec string) string {
	words := strings.Split(spec, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Specializations handles listing the configured specialization categories
func (h *StatsHandler) Specializations(c *gin.Context) {
	type entry struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	entries := make([]entry, 0, len(h.specializations))
	for _, spec := range h.specializations {
		entries = append(entries, entry{
			ID:          spec,
			Name:        displayName(spec),
			Description: describeSpecialization(spec),
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "specializations": entries})
}

// Metrics handles fetching the latest recruitment campaign metrics snapshot
func (h *StatsHandler) Metrics(c *gin.Context) {
	snapshot, err := h.store.LatestMetrics(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"success": true, "metrics": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": snapshot})
}
