package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"CityOps/model"
	"CityOps/tools/errs"
)

// restClient talks to the CityOps REST API. Every surface treats REST
// responses as authoritative ground truth.
type restClient struct {
	base  string
	token string
	http  *http.Client
}

func newRestClient(base, token string, hc *http.Client) *restClient {
	return &restClient{base: strings.TrimRight(base, "/"), token: token, http: hc}
}

func (r *restClient) Summaries(ctx context.Context) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	err := r.do(ctx, http.MethodGet, "/conversations", nil, &out)
	return out, err
}

func (r *restClient) Thread(ctx context.Context, peerID int64) ([]model.Message, error) {
	var out []model.Message
	err := r.do(ctx, http.MethodGet, "/messages/"+itoa(peerID), nil, &out)
	return out, err
}

func (r *restClient) SendMessage(ctx context.Context, recipientID int64, body string) (model.Message, error) {
	var out model.Message
	err := r.do(ctx, http.MethodPost, "/messages",
		map[string]any{"recipient_id": recipientID, "body": body}, &out)
	return out, err
}

func (r *restClient) EditMessage(ctx context.Context, id int64, body string) (model.Message, error) {
	var out model.Message
	err := r.do(ctx, http.MethodPut, "/messages/"+itoa(id), map[string]any{"body": body}, &out)
	return out, err
}

func (r *restClient) DeleteMessage(ctx context.Context, id int64) error {
	return r.do(ctx, http.MethodDelete, "/messages/"+itoa(id), nil, nil)
}

func (r *restClient) MarkThreadRead(ctx context.Context, peerID int64) error {
	return r.do(ctx, http.MethodPost, "/messages/"+itoa(peerID)+"/read", nil, nil)
}

func (r *restClient) Notifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	err := r.do(ctx, http.MethodGet, "/notifications", nil, &out)
	return out, err
}

func (r *restClient) MarkNotificationRead(ctx context.Context, id int64) error {
	return r.do(ctx, http.MethodPost, "/notifications/"+itoa(id)+"/read", nil, nil)
}

func (r *restClient) MarkAllNotificationsRead(ctx context.Context) error {
	return r.do(ctx, http.MethodPost, "/notifications/read-all", nil, nil)
}

func (r *restClient) DeleteNotification(ctx context.Context, id int64) error {
	return r.do(ctx, http.MethodDelete, "/notifications/"+itoa(id), nil, nil)
}

func (r *restClient) Users(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := r.do(ctx, http.MethodGet, "/users", nil, &out)
	return out, err
}

func (r *restClient) do(ctx context.Context, method, path string, in, out any) error {
	var rdr io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errs.Wrap(err, "marshal request")
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, rdr)
	if err != nil {
		return errs.Wrap(err, "new request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return errs.Wrap(err, method+" "+path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var ce errs.CodeError
		if json.NewDecoder(resp.Body).Decode(&ce) == nil && ce.Code != 0 {
			return &ce
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.Wrap(err, "decode response")
		}
	}
	return nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
