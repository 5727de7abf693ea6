package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CityOps/middleware"
	"CityOps/model"
	"CityOps/service/bus"
	"CityOps/service/notify"
	"CityOps/tools/errs"
	"CityOps/tools/security"
)

var testJWT = security.Options{Secret: []byte("test-secret"), TTL: time.Hour}

type receipt struct {
	id, viewer int64
}

type fakeStore struct {
	rows    map[int64]model.Notification
	nextID  int64
	reads   []receipt
	hidden  []receipt
	deleted []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]model.Notification)}
}

func (f *fakeStore) Insert(_ context.Context, n model.Notification) (model.Notification, error) {
	f.nextID++
	n.ID = f.nextID
	n.CreatedAt = time.Now()
	f.rows[n.ID] = n
	return n, nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (model.Notification, error) {
	n, ok := f.rows[id]
	if !ok {
		return model.Notification{}, errs.ErrNotFound
	}
	return n, nil
}

func (f *fakeStore) FeedFor(_ context.Context, viewerID int64) ([]model.Notification, error) {
	var out []model.Notification
	for _, n := range f.rows {
		if n.Broadcast() || *n.TargetID == viewerID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkRead(_ context.Context, id, viewerID int64) error {
	f.reads = append(f.reads, receipt{id: id, viewer: viewerID})
	return nil
}

func (f *fakeStore) MarkAllRead(_ context.Context, viewerID int64) error {
	f.reads = append(f.reads, receipt{viewer: viewerID})
	return nil
}

func (f *fakeStore) Hide(_ context.Context, id, viewerID int64) error {
	f.hidden = append(f.hidden, receipt{id: id, viewer: viewerID})
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) error {
	delete(f.rows, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestRouter(store *fakeStore) (*gin.Engine, bus.Bus) {
	gin.SetMode(gin.TestMode)
	b := bus.NewMemory()
	r := gin.New()
	api := r.Group("/api", middleware.Auth(testJWT))
	NewHandler(store, notify.NewService(store, b)).Register(api)
	return r, b
}

func doJSON(t *testing.T, r *gin.Engine, viewer int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	token, _, err := security.Generate(testJWT, viewer)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateBroadcastPushesToBus(t *testing.T) {
	store := newFakeStore()
	r, b := newTestRouter(store)
	defer b.Close()

	var pushed []model.Notification
	_, err := b.Subscribe(bus.SubjectNotify, func(_ string, data []byte) {
		var ev bus.NotificationEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		pushed = append(pushed, ev.Notification)
	})
	require.NoError(t, err)

	w := doJSON(t, r, 1, http.MethodPost, "/api/notifications", gin.H{
		"category": "alert", "title": "Alerte", "body": "inondation secteur 4",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var n model.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.True(t, n.Broadcast())
	require.Len(t, pushed, 1)
	assert.Equal(t, n.ID, pushed[0].ID)
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name string
		body gin.H
	}{
		{"missing body", gin.H{"category": "alert"}},
		{"unknown category", gin.H{"category": "gossip", "body": "x"}},
		{"bad target", gin.H{"category": "alert", "body": "x", "target_id": -3}},
	}
	store := newFakeStore()
	r, b := newTestRouter(store)
	defer b.Close()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, 1, http.MethodPost, "/api/notifications", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, store.rows)
}

func TestMarkReadWritesViewerReceipt(t *testing.T) {
	store := newFakeStore()
	store.Insert(context.Background(), model.Notification{Category: model.CategoryAlert, Body: "x"})
	r, b := newTestRouter(store)
	defer b.Close()

	w := doJSON(t, r, 5, http.MethodPost, "/api/notifications/1/read", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, store.reads, 1)
	assert.Equal(t, receipt{id: 1, viewer: 5}, store.reads[0])
}

func TestMarkAllRead(t *testing.T) {
	store := newFakeStore()
	r, b := newTestRouter(store)
	defer b.Close()

	w := doJSON(t, r, 5, http.MethodPost, "/api/notifications/read-all", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, store.reads, 1)
	assert.Equal(t, int64(5), store.reads[0].viewer)
}

func TestDeleteBroadcastOnlyHidesForViewer(t *testing.T) {
	store := newFakeStore()
	store.Insert(context.Background(), model.Notification{Category: model.CategoryAlert, Body: "shared"})
	r, b := newTestRouter(store)
	defer b.Close()

	w := doJSON(t, r, 5, http.MethodDelete, "/api/notifications/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// The row survives; only a per-viewer hide receipt was written.
	assert.Len(t, store.rows, 1)
	require.Len(t, store.hidden, 1)
	assert.Equal(t, receipt{id: 1, viewer: 5}, store.hidden[0])
	assert.Empty(t, store.deleted)
}

func TestDeletePrivateByTargetRemovesRow(t *testing.T) {
	store := newFakeStore()
	uid := int64(5)
	store.Insert(context.Background(), model.Notification{TargetID: &uid, Category: model.CategoryIntervention, Body: "private"})
	r, b := newTestRouter(store)
	defer b.Close()

	w := doJSON(t, r, 5, http.MethodDelete, "/api/notifications/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{1}, store.deleted)
}

func TestDeletePrivateByOtherUserForbidden(t *testing.T) {
	store := newFakeStore()
	uid := int64(5)
	store.Insert(context.Background(), model.Notification{TargetID: &uid, Category: model.CategoryIntervention, Body: "private"})
	r, b := newTestRouter(store)
	defer b.Close()

	w := doJSON(t, r, 6, http.MethodDelete, "/api/notifications/1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, store.rows, 1)
}

func TestDeleteMissingNotification(t *testing.T) {
	store := newFakeStore()
	r, b := newTestRouter(store)
	defer b.Close()

	w := doJSON(t, r, 1, http.MethodDelete, "/api/notifications/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedEmptyArrayNotNull(t *testing.T) {
	store := newFakeStore()
	r, b := newTestRouter(store)
	defer b.Close()

	w := doJSON(t, r, 1, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
