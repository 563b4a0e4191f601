package api

import (
	"context"
	"log/slog"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"laundry-locker/internal/locker"
)

// Opener opens a locker door for loading. *actuator.Sequencer implements it.
type Opener interface {
	Open(ctx context.Context, lockerID string) error
}

// CardPresenter injects a card read, for readers that support it.
// *reader.Queue implements it.
type CardPresenter interface {
	Present(cardID string) error
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc       *locker.Service
	opener    Opener
	db        *gorm.DB
	webpush   *webpush.Options
	simulator CardPresenter
	// saveDevice persists updated device info. It may be nil.
	saveDevice func(locker.DeviceInfo) error
	logger     *slog.Logger
}

// Deps collects the handler's collaborators.
type Deps struct {
	Service    *locker.Service
	Opener     Opener
	DB         *gorm.DB
	WebPush    *webpush.Options
	Simulator  CardPresenter
	SaveDevice func(locker.DeviceInfo) error
	Logger     *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:        d.Service,
		opener:     d.Opener,
		db:         d.DB,
		webpush:    d.WebPush,
		simulator:  d.Simulator,
		saveDevice: d.SaveDevice,
		logger:     logger.With("component", "api"),
	}
}
