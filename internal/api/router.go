package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"laundry-locker/config"
	"laundry-locker/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/device-info", h.GetDeviceInfo)
		api.POST("/update-device-info", h.UpdateDeviceInfo)
		api.GET("/status", h.GetStatus)
		api.GET("/health", h.GetHealth)
		api.GET("/wash-types", caching, h.GetWashTypes)

		api.GET("/read-card", h.ReadCard)
		api.POST("/clear-card-queue", h.ClearCardQueue)
		api.POST("/reset-rfid-reader", h.ResetReader)
		if h.simulator != nil {
			api.POST("/simulate-card", h.SimulateCard)
		}

		api.POST("/drop-off", h.DropOff)
		api.POST("/pick-up", h.PickUp)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
