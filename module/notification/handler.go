// Package notification exposes the REST side of the notification feed.
// Read state is per viewer: broadcast rows are shared, their receipts are
// not, so one user's "mark read" never hides a broadcast for someone else.
package notification

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"CityOps/middleware"
	"CityOps/model"
	"CityOps/service/notify"
	"CityOps/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Store interface {
	Get(ctx context.Context, id int64) (model.Notification, error)
	FeedFor(ctx context.Context, viewerID int64) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, viewerID int64) error
	MarkAllRead(ctx context.Context, viewerID int64) error
	Hide(ctx context.Context, id, viewerID int64) error
	Delete(ctx context.Context, id int64) error
}

type Handler struct {
	store    Store
	svc      *notify.Service
	validate *validator.Validate
}

func NewHandler(store Store, svc *notify.Service) *Handler {
	return &Handler{store: store, svc: svc, validate: validator.New()}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/notifications", h.Feed)
	r.POST("/notifications", h.Create)
	r.POST("/notifications/:id/read", h.MarkRead)
	r.POST("/notifications/read-all", h.MarkAllRead)
	r.DELETE("/notifications/:id", h.Delete)
}

func (h *Handler) Feed(c *gin.Context) {
	feed, err := h.store.FeedFor(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if feed == nil {
		feed = []model.Notification{}
	}
	c.JSON(http.StatusOK, feed)
}

type createRequest struct {
	TargetID *int64 `json:"target_id" validate:"omitempty,gt=0"`
	Category string `json:"category" validate:"required,oneof=alert stock report intervention"`
	Title    string `json:"title" validate:"max=200"`
	Body     string `json:"body" validate:"required,min=1,max=2000"`
	Link     string `json:"link" validate:"max=200"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}

	n, err := h.svc.CreateAndPush(c.Request.Context(), model.Notification{
		TargetID: req.TargetID,
		Category: req.Category,
		Title:    req.Title,
		Body:     req.Body,
		Link:     req.Link,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	if err := h.store.MarkRead(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	if err := h.store.MarkAllRead(c.Request.Context(), middleware.UserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete hard-deletes a private notification for its target; for broadcast
// rows it only hides the entry for this viewer.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	viewer := middleware.UserID(c)

	n, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, errs.ErrNotFound)
		} else {
			c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		}
		return
	}

	if n.Broadcast() {
		if err := h.store.Hide(c.Request.Context(), id, viewer); err != nil {
			c.JSON(http.StatusInternalServerError, errs.ErrInternal)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	if *n.TargetID != viewer {
		c.JSON(http.StatusForbidden, errs.ErrPermission.WithDetail("not the notification target"))
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.Status(http.StatusNoContent)
}

func paramInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("bad "+name+" parameter"))
		return 0, false
	}
	return v, true
}
