package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"laundry-locker/internal/locker"
	"laundry-locker/internal/parse"
	"laundry-locker/internal/reader"
)

// ReadCard handles GET /api/read-card.
func (h *Handler) ReadCard(c *gin.Context) {
	card, ok := h.svc.LastCard()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "No card recently read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"card":       card.CardID,
		"read_count": card.ReadCount,
		"timestamp":  card.Timestamp,
	})
}

// ClearCardQueue handles POST /api/clear-card-queue.
func (h *Handler) ClearCardQueue(c *gin.Context) {
	h.svc.ClearCardQueue()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetReader handles POST /api/reset-rfid-reader.
func (h *Handler) ResetReader(c *gin.Context) {
	if err := h.svc.ResetReader(c.Request.Context()); err != nil {
		h.logger.Error("manual reader reset failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to reset RFID reader"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "RFID reader reset successfully"})
}

type simulateCardRequest struct {
	CardID json.RawMessage `json:"card_id"`
}

// SimulateCard handles POST /api/simulate-card. It is only routed when the
// reader accepts injected cards.
func (h *Handler) SimulateCard(c *gin.Context) {
	var req simulateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request"})
		return
	}
	cardID, err := parse.CardIDJSON(req.CardID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if err := h.simulator.Present(cardID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reader.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

type dropOffRequest struct {
	CardID   json.RawMessage `json:"card_id"`
	WashType json.RawMessage `json:"wash_type"`
}

// DropOff handles POST /api/drop-off. On success the assigned locker is
// opened before responding.
func (h *Handler) DropOff(c *gin.Context) {
	var req dropOffRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.CardID) == 0 || len(req.WashType) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing required fields"})
		return
	}
	cardID, err := parse.CardIDJSON(req.CardID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	washTypeID, err := parse.WashTypeRef(req.WashType, h.svc.WashTypes(ctx))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid wash type: " + string(req.WashType)})
		return
	}

	h.logger.Info("drop-off request", "card_id", cardID, "wash_type", washTypeID)
	receipt, err := h.svc.Assign(ctx, cardID, washTypeID)
	switch {
	case errors.Is(err, locker.ErrDuplicateAssignment):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "This card already has clothes in locker " + receipt.LockerID + ". Please use the pickup process first.",
		})
		return
	case errors.Is(err, locker.ErrLockerUnavailable):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "No lockers available"})
		return
	case errors.Is(err, locker.ErrInvalidWashType):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid wash type: " + string(washTypeID)})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	message := receipt.Message
	if h.opener != nil {
		// The door is held for its full time even if the client has gone.
		if err := h.opener.Open(context.WithoutCancel(ctx), receipt.LockerID); err != nil {
			h.logger.Error("failed to open locker for drop-off", "locker_id", receipt.LockerID, "err", err)
			message += "; the door did not open, please contact staff"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        message,
		"locker_id":      receipt.LockerID,
		"transaction_id": receipt.TransactionID,
	})
}

type pickUpRequest struct {
	CardID json.RawMessage `json:"card_id"`
}

// PickUp handles POST /api/pick-up.
func (h *Handler) PickUp(c *gin.Context) {
	var req pickUpRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.CardID) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing card_id"})
		return
	}
	cardID, err := parse.CardIDJSON(req.CardID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	h.logger.Info("pickup request", "card_id", cardID)
	receipt, err := h.svc.ProcessPickup(c.Request.Context(), cardID)
	if errors.Is(err, locker.ErrTransactionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Card not associated with any locker"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   receipt.Message,
		"locker_id": receipt.LockerID,
		"path":      receipt.Path,
	})
}
