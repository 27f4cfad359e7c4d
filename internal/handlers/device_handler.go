package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/repositories"
)

// DeviceHandler handles push device registration HTTP requests
type DeviceHandler struct {
	deviceRepository repositories.DeviceRepository
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(deviceRepo repositories.DeviceRepository) *DeviceHandler {
	return &DeviceHandler{deviceRepository: deviceRepo}
}

// RegisterDeviceRoutes registers device routes
func (h *DeviceHandler) RegisterDeviceRoutes(g *echo.Group) {
	g.POST("/devices", h.RegisterDevice)
	g.GET("/devices", h.GetDevices)
	g.DELETE("/devices/:device_id", h.DeactivateDevice)
}

// RegisterDevice registers a push device, refreshing the token when the
// device is already known.
func (h *DeviceHandler) RegisterDevice(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.RegisterDeviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	device := &models.PushDevice{
		UserID:     currentUserID,
		DeviceType: models.DeviceType(req.DeviceType),
		Token:      req.Token,
		DeviceID:   req.DeviceID,
		UserAgent:  req.UserAgent,
		AppVersion: req.AppVersion,
	}
	if err := h.deviceRepository.Upsert(c.Request().Context(), device); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"device": device}})
}

// GetDevices lists the user's registered devices, most recently used first.
func (h *DeviceHandler) GetDevices(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	devices, err := h.deviceRepository.GetByUser(c.Request().Context(), currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"devices": devices}})
}

// DeactivateDevice stops push delivery to a device.
func (h *DeviceHandler) DeactivateDevice(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	deviceID := c.Param("device_id")
	if deviceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Device ID is required")
	}

	err := h.deviceRepository.Deactivate(c.Request().Context(), currentUserID, deviceID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Device not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"deactivated": true}})
}
