package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tongjisync/internal/normalize"
)

// ErrNotFound is returned by the lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ActiveVisitors returns the visitors of siteID with events still marked as
// visiting, most recently received first.
func ActiveVisitors(ctx context.Context, db *gorm.DB, siteID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	var ids []string
	err := db.WithContext(ctx).Model(&Event{}).
		Select("visitor_id").
		Where("site_id = ? AND duration = ?", siteID, normalize.DurationVisiting).
		Group("visitor_id").
		Order("MIN(receive_time) DESC").
		Limit(limit).
		Pluck("visitor_id", &ids).Error
	return ids, err
}

// FindSession loads a session row and its events in time order. Rows are
// maps so custom tracking columns come along.
func FindSession(ctx context.Context, db *gorm.DB, sessionID string) (map[string]any, []map[string]any, error) {
	session := map[string]any{}
	err := db.WithContext(ctx).Table("sessions").Where("session_id = ?", sessionID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var events []map[string]any
	err = db.WithContext(ctx).Table("events").
		Where("session_id = ?", sessionID).
		Order("unix_timestamp ASC, event_id ASC").
		Find(&events).Error
	if err != nil {
		return nil, nil, err
	}
	return session, events, nil
}

// FindVisitor loads a visitor profile.
func FindVisitor(ctx context.Context, db *gorm.DB, visitorID string) (*Visitor, error) {
	var v Visitor
	err := db.WithContext(ctx).Where("visitor_id = ?", visitorID).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Records binds the lookups to a connection.
type Records struct {
	DB *gorm.DB
}

func (r Records) FindSession(ctx context.Context, sessionID string) (map[string]any, []map[string]any, error) {
	return FindSession(ctx, r.DB, sessionID)
}

func (r Records) FindVisitor(ctx context.Context, visitorID string) (*Visitor, error) {
	return FindVisitor(ctx, r.DB, visitorID)
}

func (r Records) ActiveVisitors(ctx context.Context, siteID string, limit int) ([]string, error) {
	return ActiveVisitors(ctx, r.DB, siteID, limit)
}

// Archive stores raw payloads with the given retention.
func (r Records) Archive(retentionDays int) func(ctx context.Context, siteID, runID string, body []byte) error {
	return func(ctx context.Context, siteID, runID string, body []byte) error {
		return ArchiveRaw(ctx, r.DB, siteID, runID, body, retentionDays)
	}
}
