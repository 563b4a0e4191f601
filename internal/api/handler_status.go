package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"laundry-locker/internal/locker"
)

const apiVersion = "1.1.0"

var started = time.Now()

// GetDeviceInfo handles GET /api/device-info.
func (h *Handler) GetDeviceInfo(c *gin.Context) {
	info := h.svc.DeviceInfo()
	c.JSON(http.StatusOK, gin.H{
		"device_name":     info.DeviceName,
		"device_location": info.DeviceLocation,
		"system_name":     info.SystemName,
		"api_version":     apiVersion,
		"uptime":          time.Since(started).Truncate(time.Second).String(),
	})
}

type updateDeviceInfoRequest struct {
	DeviceName     string `json:"device_name"`
	DeviceLocation string `json:"device_location"`
	SystemName     string `json:"system_name"`
}

// UpdateDeviceInfo handles POST /api/update-device-info.
func (h *Handler) UpdateDeviceInfo(c *gin.Context) {
	var req updateDeviceInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request"})
		return
	}
	if req.DeviceName == "" && req.DeviceLocation == "" && req.SystemName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No device information provided"})
		return
	}

	info := h.svc.UpdateDeviceInfo(locker.DeviceInfo{
		DeviceName:     req.DeviceName,
		DeviceLocation: req.DeviceLocation,
		SystemName:     req.SystemName,
	})
	if h.saveDevice != nil {
		if err := h.saveDevice(info); err != nil {
			h.logger.Error("failed to save device info", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success":     false,
				"message":     "Device information updated but could not be saved",
				"device_info": info,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Device information updated",
		"device_info": info,
	})
}

// GetStatus handles GET /api/status.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

// GetHealth handles GET /api/health.
func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

// GetWashTypes handles GET /api/wash-types.
func (h *Handler) GetWashTypes(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.WashTypes(c.Request.Context()))
}
