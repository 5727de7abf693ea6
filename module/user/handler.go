// Package user serves the directory clients use to map ids to display names
// and presence.
package user

import (
	"context"
	"net/http"

	"CityOps/model"
	"CityOps/tools/errs"

	"github.com/gin-gonic/gin"
)

type Store interface {
	List(ctx context.Context) ([]model.User, error)
}

// Presence answers live online lookups. The persisted status column can lag
// behind a failed write, so the list overlays it with the cache when present.
type Presence interface {
	Lookup(ctx context.Context, userID int64) (bool, error)
}

type Handler struct {
	store    Store
	presence Presence
}

func NewHandler(store Store, presence Presence) *Handler {
	return &Handler{store: store, presence: presence}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/users", h.List)
}

func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := h.store.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	if h.presence != nil {
		for i := range users {
			online, err := h.presence.Lookup(ctx, users[i].ID)
			if err != nil {
				continue
			}
			if online {
				users[i].ActivityStatus = model.StatusOnline
			}
		}
	}
	c.JSON(http.StatusOK, users)
}
