package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/repositories"
)

// PreferenceHandler handles notification preference HTTP requests
type PreferenceHandler struct {
	preferenceRepository repositories.PreferenceRepository
}

// NewPreferenceHandler creates a new PreferenceHandler
func NewPreferenceHandler(prefRepo repositories.PreferenceRepository) *PreferenceHandler {
	return &PreferenceHandler{preferenceRepository: prefRepo}
}

// RegisterPreferenceRoutes registers preference routes
func (h *PreferenceHandler) RegisterPreferenceRoutes(g *echo.Group) {
	g.GET("/notifications/preferences", h.GetPreferences)
	g.PUT("/notifications/preferences", h.UpdatePreferences)
}

// GetPreferences returns the user's preference set, creating the default row
// on first access.
func (h *PreferenceHandler) GetPreferences(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	prefs, err := h.preferenceRepository.GetOrCreate(c.Request().Context(), currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"preferences": prefs}})
}

// UpdatePreferences applies a sparse patch to the user's preference set.
func (h *PreferenceHandler) UpdatePreferences(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.UpdatePreferencesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validateQuietHours(req.QuietHoursStart); err != nil {
		return err
	}
	if err := validateQuietHours(req.QuietHoursEnd); err != nil {
		return err
	}

	prefs, err := h.preferenceRepository.Update(c.Request().Context(), currentUserID, &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"preferences": prefs}})
}

func validateQuietHours(v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if !models.ValidTimeOfDay(*v) {
		return echo.NewHTTPError(http.StatusBadRequest, "Quiet hours must be in HH:MM format")
	}
	return nil
}
