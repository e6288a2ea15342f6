// Package api exposes the sync backend's HTTP surface: the record CRUD
// routes the client reconcilers call, token issuing, health, and the
// websocket change feed.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/server/auth"
	"github.com/dstepanov-dev/localnotes/internal/server/records"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "notesync_user_id"

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingRecordsService = errors.New("records service dependency required")
)

// Dependencies wires the router's collaborators.
type Dependencies struct {
	TokenManager   *auth.TokenManager
	RecordsService *records.Service
	Dispatcher     *Dispatcher
	Logger         *zap.Logger
}

// NewHTTPHandler builds the HTTP surface: the gin router for the REST
// routes, with the websocket event feed mounted next to it.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.RecordsService == nil {
		return nil, errMissingRecordsService
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewDispatcher()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	h := &handler{
		tokens:     deps.TokenManager,
		records:    deps.RecordsService,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}

	router.GET("/healthz", h.handleHealth)
	router.POST("/api/v1/auth/token", h.handleIssueToken)

	protected := router.Group("/api/v1")
	protected.Use(h.authorizeRequest)
	protected.GET("/:type", h.handleList)
	protected.POST("/:type", h.handleInsert)
	protected.GET("/:type/:id", h.handleGet)
	protected.PUT("/:type/:id", h.handleUpdate)
	protected.DELETE("/:type/:id", h.handleDelete)
	protected.GET("/:type/:id/version", h.handleGetVersion)

	// The websocket upgrade hijacks the connection and must see the
	// server's raw ResponseWriter, so the event feed bypasses gin's
	// buffered writer entirely.
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events", h.handleEvents)
	mux.Handle("/", router)
	return mux, nil
}

type handler struct {
	tokens     *auth.TokenManager
	records    *records.Service
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func (h *handler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header missing or invalid"})
		return
	}
	userID, err := h.tokens.Validate(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func currentUserID(c *gin.Context) string {
	v, _ := c.Get(userIDContextKey)
	userID, _ := v.(string)
	return userID
}

// bearerToken extracts the bearer token from a raw request, for handlers
// mounted outside the gin middleware chain.
func bearerToken(r *http.Request) string {
	header := r.Header.Get(common.AuthHeaderName)
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(header, common.BearerPrefix)
}
