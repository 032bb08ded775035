package server

import (
	"errors"
	"log"
	"net/http"
	"time"

	toolgate "github.com/Desarso/toolgate"
	models "github.com/Desarso/toolgate/models"
	"github.com/Desarso/toolgate/stores"
	"github.com/gin-gonic/gin"
)

// Server exposes the gateway over HTTP: the completion endpoint, a
// websocket variant, pricing/markup administration, and health.
type Server struct {
	Gateway *toolgate.Gateway
	Store   stores.GatewayStore
	Pricing *toolgate.PricingResolver
	Logger  *log.Logger
}

func NewServer(gw *toolgate.Gateway, store stores.GatewayStore, pricing *toolgate.PricingResolver, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{Gateway: gw, Store: store, Pricing: pricing, Logger: logger}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	router.GET("/health", s.handleHealth)
	router.POST("/v1/chat/completions", s.handleCompletion)
	router.GET("/v1/chat/stream", s.handleStream)

	admin := router.Group("/admin")
	{
		admin.GET("/pricing", s.handleListPricing)
		admin.POST("/pricing", s.handleSavePricing)
		admin.POST("/markup", s.handleSaveMarkup)
		admin.GET("/usage/:userID", s.handleListUsage)
	}

	return router
}

// Run starts the HTTP server on addr.
func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
	if s.Store != nil {
		if err := s.Store.Ping(); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["store"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleCompletion(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = req.User
	}

	result, err := s.Gateway.Complete(c.Request.Context(), userID, &req)
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	resp := result.Response
	resp.ID = result.RequestID
	resp.Usage = &result.Usage
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListPricing(c *gin.Context) {
	records, err := s.Store.AllActivePricing()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pricing": records})
}

type pricingRequest struct {
	Provider         string    `json:"provider" binding:"required"`
	ModelName        string    `json:"model" binding:"required"`
	InputPricePer1K  float64   `json:"input_price_per_1k"`
	OutputPricePer1K float64   `json:"output_price_per_1k"`
	Currency         string    `json:"currency"`
	EffectiveDate    time.Time `json:"effective_date"`
	ChangedBy        string    `json:"changed_by"`
}

func (s *Server) handleSavePricing(c *gin.Context) {
	var body pricingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.EffectiveDate.IsZero() {
		body.EffectiveDate = time.Now().UTC()
	}

	rec := &stores.PricingRecord{
		Provider:         body.Provider,
		ModelName:        body.ModelName,
		InputPricePer1K:  body.InputPricePer1K,
		OutputPricePer1K: body.OutputPricePer1K,
		Currency:         body.Currency,
		EffectiveDate:    body.EffectiveDate,
		Active:           true,
	}
	if err := s.Store.SavePricing(rec, body.ChangedBy); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// make the new price visible without waiting for the cron refresh
	if s.Pricing != nil {
		if err := s.Pricing.Refresh(); err != nil {
			s.Logger.Printf("pricing refresh after save failed: %v", err)
		}
	}
	c.JSON(http.StatusCreated, gin.H{"pricing": rec})
}

type markupRequest struct {
	UserID      string  `json:"user_id" binding:"required"`
	ModelName   string  `json:"model" binding:"required"`
	MarkupRate  float64 `json:"markup_rate"`
	FixedMarkup float64 `json:"fixed_markup"`
}

func (s *Server) handleSaveMarkup(c *gin.Context) {
	var body markupRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.MarkupRate == 0 {
		body.MarkupRate = 1.0
	}

	policy := &stores.UserMarkupPolicy{
		UserID:      body.UserID,
		ModelName:   body.ModelName,
		MarkupRate:  body.MarkupRate,
		FixedMarkup: body.FixedMarkup,
		Active:      true,
	}
	if err := s.Store.SaveMarkupPolicy(policy); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markup": policy})
}

func (s *Server) handleListUsage(c *gin.Context) {
	userID := c.Param("userID")
	records, err := s.Store.ListUsage(userID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": records})
}

// errorStatus maps the error taxonomy onto HTTP statuses.
func errorStatus(err error) (int, string) {
	var badReq *models.BadRequestError
	if errors.As(err, &badReq) {
		return http.StatusBadRequest, badReq.Error()
	}
	var upstream *models.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.Status == http.StatusTooManyRequests {
			return http.StatusTooManyRequests, upstream.Error()
		}
		return http.StatusBadGateway, upstream.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
