package concierge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/comigor/guest-assistant/internal/booking"
	"github.com/comigor/guest-assistant/internal/config"
	"github.com/comigor/guest-assistant/internal/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	internalError   = "An internal error occurred"
)

const personalizedTemplate = `Based on the following guest information and hotel guide, provide a personalized response:

%s

Guest's Question: %s

Remember to:
1. Use the search_info tool to find relevant information from the hotel guide
2. Consider the guest's preferences and details when providing recommendations
3. Speak directly to the guest
4. Provide specific, detailed recommendations`

// PersonalizedQuery wraps a guest question with their booking details.
func PersonalizedQuery(b booking.Booking, query string) string {
	return fmt.Sprintf(personalizedTemplate, b.Format(), query)
}

type askRequest struct {
	Query         *string `json:"query"`
	BookingNumber *string `json:"booking_number"`
}

// Server serves the /ask API.
type Server struct {
	answerer Answerer
	bookings *booking.Directory
	limiter  *limiterStore
	origins  []string
}

func NewServer(answerer Answerer, bookings *booking.Directory, cfg config.ServerConfig) *Server {
	if bookings == nil {
		bookings = booking.NewDirectory(nil)
	}
	return &Server{
		answerer: answerer,
		bookings: bookings,
		limiter:  newLimiterStore(cfg.RatePerMinute),
		origins:  cfg.AllowedOrigins,
	}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), gin.Recovery(), cors.New(s.corsConfig()))
	if s.limiter != nil {
		r.Use(s.limiter.middleware())
	}

	r.GET("/health", s.health)
	r.GET("/hello", s.hello)
	r.POST("/ask", s.ask)
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	var origins []string
	for _, o := range s.origins {
		if o == "*" {
			origins = nil
			break
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "API is running"})
}

func (s *Server) hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Hello from the Guest Guide API!",
		"version": "1.0.0",
		"endpoints": gin.H{
			"health": "/health [GET]",
			"hello":  "/hello [GET]",
			"ask":    "/ask [POST]",
		},
	})
}

func badRequest(c *gin.Context, msg string) {
	logger.L.Warn("Bad request", "message", msg, "request_id", c.GetString(requestIDHeader))
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": msg})
}

func (s *Server) ask(c *gin.Context) {
	rid := c.GetString(requestIDHeader)
	if c.ContentType() != gin.MIMEJSON {
		badRequest(c, "Content-Type must be application/json")
		return
	}

	var req askRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		badRequest(c, "Failed to decode JSON object")
		return
	}
	if req.Query == nil {
		badRequest(c, "Missing 'query' in request body")
		return
	}
	query := *req.Query
	if strings.TrimSpace(query) == "" {
		badRequest(c, "Query cannot be empty")
		return
	}
	logger.L.Info("Received query", "query", query, "request_id", rid)

	if req.BookingNumber != nil && *req.BookingNumber != "" {
		b, err := s.bookings.Lookup(*req.BookingNumber)
		if err != nil {
			var lookupErr *booking.LookupError
			if !errors.As(err, &lookupErr) {
				logger.L.Error("Booking lookup failed", "error", err, "request_id", rid)
				c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": internalError})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error(), "query": query})
			return
		}
		query = PersonalizedQuery(b, query)
	}

	response, err := s.answerer.Answer(c.Request.Context(), query)
	if err != nil {
		logger.L.Error("Error processing query", "error", err, "request_id", rid)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": internalError})
		return
	}
	logger.L.Info("Generated response", "request_id", rid)
	c.JSON(http.StatusOK, gin.H{"status": "success", "response": response, "query": query})
}

// requestID tags every request with an id, reusing the caller's when given.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// limiterStore holds one token bucket per client IP.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// newLimiterStore returns nil when perMin disables limiting.
func newLimiterStore(perMin int) *limiterStore {
	if perMin <= 0 {
		return nil
	}
	return &limiterStore{limiters: make(map[string]*rate.Limiter), perMin: perMin}
}

func (s *limiterStore) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)
		s.limiters[ip] = l
	}
	return l
}

func (s *limiterStore) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !s.get(ip).Allow() {
			logger.L.Warn("Rate limit exceeded", "ip", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"status": "error", "message": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}
