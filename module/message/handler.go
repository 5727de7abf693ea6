// Package message exposes the REST side of direct messaging: threads,
// conversation summaries and the send/edit/delete/mark-read operations. This
// layer is the single source of truth for the sender-only-mutation rule; the
// socket relay never re-checks it.
package message

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"CityOps/middleware"
	"CityOps/model"
	"CityOps/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Store interface {
	Insert(ctx context.Context, senderID, recipientID int64, body string) (model.Message, error)
	Get(ctx context.Context, id int64) (model.Message, error)
	Thread(ctx context.Context, viewerID, peerID int64) ([]model.Message, error)
	UpdateBody(ctx context.Context, id int64, body string) (model.Message, error)
	Delete(ctx context.Context, id int64) error
	MarkThreadRead(ctx context.Context, viewerID, peerID int64) (int64, error)
	Summaries(ctx context.Context, viewerID int64) ([]model.ConversationSummary, error)
}

// Directory answers "does this user exist" for recipient validation.
type Directory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

type Handler struct {
	store    Store
	dir      Directory
	validate *validator.Validate
}

func NewHandler(store Store, dir Directory) *Handler {
	return &Handler{store: store, dir: dir, validate: validator.New()}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/conversations", h.ListConversations)
	r.GET("/messages/:peer", h.Thread)
	r.POST("/messages", h.Send)
	r.PUT("/messages/:id", h.Edit)
	r.DELETE("/messages/:id", h.Delete)
	r.POST("/messages/:peer/read", h.MarkRead)
}

type sendRequest struct {
	RecipientID int64  `json:"recipient_id" validate:"required,gt=0"`
	Body        string `json:"body" validate:"required,min=1,max=4000"`
}

func (h *Handler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}

	viewer := middleware.UserID(c)
	ok, err := h.dir.Exists(c.Request.Context(), req.RecipientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("recipient does not exist"))
		return
	}

	m, err := h.store.Insert(c.Request.Context(), viewer, req.RecipientID, req.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.JSON(http.StatusCreated, m)
}

type editRequest struct {
	Body string `json:"body" validate:"required,min=1,max=4000"`
}

func (h *Handler) Edit(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}

	m, ok := h.ownedBySender(c, id)
	if !ok {
		return
	}
	updated, err := h.store.UpdateBody(c.Request.Context(), m.ID, req.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	if _, ok := h.ownedBySender(c, id); !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Thread(c *gin.Context) {
	peer, ok := paramInt64(c, "peer")
	if !ok {
		return
	}
	msgs, err := h.store.Thread(c.Request.Context(), middleware.UserID(c), peer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) MarkRead(c *gin.Context) {
	peer, ok := paramInt64(c, "peer")
	if !ok {
		return
	}
	n, err := h.store.MarkThreadRead(c.Request.Context(), middleware.UserID(c), peer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) ListConversations(c *gin.Context) {
	sums, err := h.store.Summaries(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if sums == nil {
		sums = []model.ConversationSummary{}
	}
	c.JSON(http.StatusOK, sums)
}

// ownedBySender loads the message and rejects callers other than its sender.
func (h *Handler) ownedBySender(c *gin.Context, id int64) (model.Message, bool) {
	m, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, errs.ErrNotFound)
		} else {
			c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		}
		return m, false
	}
	if m.SenderID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, errs.ErrPermission.WithDetail("only the sender may mutate a message"))
		return m, false
	}
	return m, true
}

func paramInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("bad "+name+" parameter"))
		return 0, false
	}
	return v, true
}
