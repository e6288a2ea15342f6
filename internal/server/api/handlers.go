package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const heartbeatInterval = 30 * time.Second

func (h *handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type issueTokenRequest struct {
	UserID string `json:"user_id"`
}

type issueTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	TokenType   string `json:"token_type"`
}

// handleIssueToken hands out a bearer token for a user id. The reference
// backend trusts the caller; a production deployment fronts this with a real
// identity provider.
func (h *handler) handleIssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	token, expiresAt, err := h.tokens.Issue(req.UserID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, issueTokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.UnixMilli(),
		TokenType:   "Bearer",
	})
}

func entityType(c *gin.Context) (models.EntityType, bool) {
	t := models.EntityType(c.Param("type"))
	if !t.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
		return "", false
	}
	return t, true
}

func (h *handler) handleList(c *gin.Context) {
	t, ok := entityType(c)
	if !ok {
		return
	}
	owner := currentUserID(c)

	var (
		recs []models.Record
		err  error
	)
	if raw := c.Query("since"); raw != "" {
		since, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		recs, err = h.records.ListSince(owner, t, since)
	} else {
		recs, err = h.records.List(owner, t)
	}
	if err != nil {
		h.logger.Error("failed to list records", zap.String("type", string(t)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list records"})
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

func (h *handler) handleGet(c *gin.Context) {
	t, ok := entityType(c)
	if !ok {
		return
	}
	rec, err := h.records.Get(currentUserID(c), t, c.Param("id"))
	if err != nil {
		h.replyError(c, t, err, "failed to get record")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) handleGetVersion(c *gin.Context) {
	t, ok := entityType(c)
	if !ok {
		return
	}
	vi, err := h.records.GetVersion(currentUserID(c), t, c.Param("id"))
	if err != nil {
		h.replyError(c, t, err, "failed to get record version")
		return
	}
	c.JSON(http.StatusOK, vi)
}

func (h *handler) handleInsert(c *gin.Context) {
	t, ok := entityType(c)
	if !ok {
		return
	}
	var rec models.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record body"})
		return
	}
	owner := currentUserID(c)
	confirmed, err := h.records.Insert(owner, t, rec)
	if err != nil {
		h.replyError(c, t, err, "failed to insert record")
		return
	}
	h.publish(owner, t)
	c.JSON(http.StatusCreated, confirmed)
}

func (h *handler) handleUpdate(c *gin.Context) {
	t, ok := entityType(c)
	if !ok {
		return
	}
	var rec models.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record body"})
		return
	}
	owner := currentUserID(c)
	force := c.Query("force") == "1"
	confirmed, err := h.records.Update(owner, t, c.Param("id"), rec, force)
	if err != nil {
		h.replyError(c, t, err, "failed to update record")
		return
	}
	h.publish(owner, t)
	c.JSON(http.StatusOK, confirmed)
}

func (h *handler) handleDelete(c *gin.Context) {
	t, ok := entityType(c)
	if !ok {
		return
	}
	owner := currentUserID(c)
	if err := h.records.Delete(owner, t, c.Param("id")); err != nil {
		h.replyError(c, t, err, "failed to delete record")
		return
	}
	h.publish(owner, t)
	c.Status(http.StatusNoContent)
}

func (h *handler) replyError(c *gin.Context, t models.EntityType, err error, msg string) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, common.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "version conflict"})
	case errors.Is(err, common.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "record belongs to another account"})
	case errors.Is(err, common.ErrInvalidEntityType), errors.Is(err, common.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.String("type", string(t)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func (h *handler) publish(owner string, t models.EntityType) {
	h.dispatcher.Publish(owner, ChangeEvent{
		Event:      eventChanged,
		EntityType: string(t),
		Timestamp:  time.Now(),
	})
}

// handleEvents upgrades to a websocket and streams change events until the
// client goes away. Heartbeats keep intermediaries from reaping idle
// connections. It runs outside the gin middleware chain (gin's writer
// cannot be hijacked once it has staged a response), so it checks the
// bearer token itself.
func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := h.tokens.Validate(bearerToken(r))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // cross-origin clients are expected
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx := r.Context()
	events, cancel := h.dispatcher.Subscribe(ctx, userID)
	defer cancel()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}
