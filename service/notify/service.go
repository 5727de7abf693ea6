// Package notify creates notification records and pushes them through the
// bus. Persist first, push second: the row id and timestamp are authoritative
// and the client dedup buffer needs a real id.
package notify

import (
	"context"

	"CityOps/logger"
	"CityOps/model"
	"CityOps/service/bus"
	"CityOps/tools/errs"
)

type Store interface {
	Insert(ctx context.Context, n model.Notification) (model.Notification, error)
}

type Service struct {
	store Store
	b     bus.Bus
}

func NewService(store Store, b bus.Bus) *Service {
	return &Service{store: store, b: b}
}

// CreateAndPush persists the notification and then publishes it for the
// gateway to deliver. A publish failure is logged, not surfaced: the next
// feed poll picks the row up anyway.
func (s *Service) CreateAndPush(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.Body == "" {
		return n, errs.ErrArgs.WithDetail("notification body empty")
	}
	persisted, err := s.store.Insert(ctx, n)
	if err != nil {
		logger.Warnf("[notify] insert failed, push skipped: %v", err)
		return n, err
	}

	if err := s.b.Publish(bus.SubjectNotify, bus.NotificationEvent{Notification: persisted}); err != nil {
		logger.Warnf("[notify] push failed for notification %d: %v", persisted.ID, err)
	}
	return persisted, nil
}

// Emitter helpers used by the CRUD workflows (alerts, stock, reports,
// interventions). Broadcast unless a target is given.

func (s *Service) NotifyAlert(ctx context.Context, title, body, link string) (model.Notification, error) {
	return s.CreateAndPush(ctx, model.Notification{
		Category: model.CategoryAlert, Title: title, Body: body, Link: link,
	})
}

func (s *Service) NotifyLowStock(ctx context.Context, body, link string) (model.Notification, error) {
	return s.CreateAndPush(ctx, model.Notification{
		Category: model.CategoryStock, Title: "Stock faible", Body: body, Link: link,
	})
}

func (s *Service) NotifyReport(ctx context.Context, body, link string) (model.Notification, error) {
	return s.CreateAndPush(ctx, model.Notification{
		Category: model.CategoryReport, Title: "Nouveau rapport", Body: body, Link: link,
	})
}

// NotifyAssignment is private to the assigned technician.
func (s *Service) NotifyAssignment(ctx context.Context, targetID int64, body, link string) (model.Notification, error) {
	return s.CreateAndPush(ctx, model.Notification{
		TargetID: &targetID, Category: model.CategoryIntervention,
		Title: "Nouvelle intervention", Body: body, Link: link,
	})
}
