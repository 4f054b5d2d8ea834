package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sahilchouksey/course-marketplace-api/services/storage"
)

// CallbackArchiver keeps a copy of every gateway callback that changed a payment
type CallbackArchiver interface {
	Archive(ctx context.Context, txnID string, fields map[string]interface{}) (string, error)
}

// SpacesCallbackArchiver writes callbacks as JSON objects under callbacks/<date>/
type SpacesCallbackArchiver struct {
	store storage.ObjectStore
	now   func() time.Time
}

// NewSpacesCallbackArchiver creates an archiver on top of store
func NewSpacesCallbackArchiver(store storage.ObjectStore) *SpacesCallbackArchiver {
	return &SpacesCallbackArchiver{store: store, now: time.Now}
}

// CallbackKey is the object key for a callback received at t
func CallbackKey(txnID string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("callbacks/%s/%s-%d.json", t.Format("2006-01-02"), txnID, t.Unix())
}

func (a *SpacesCallbackArchiver) Archive(ctx context.Context, txnID string, fields map[string]interface{}) (string, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal callback: %w", err)
	}

	key := CallbackKey(txnID, a.now())
	if err := a.store.Put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// ArchivedCallback is one stored gateway callback
type ArchivedCallback struct {
	Key    string                 `json:"key"`
	Fields map[string]interface{} `json:"fields"`
}

// Callbacks returns the callbacks archived for txnID on the UTC day of day, oldest first
func (a *SpacesCallbackArchiver) Callbacks(ctx context.Context, txnID string, day time.Time) ([]ArchivedCallback, error) {
	prefix := fmt.Sprintf("callbacks/%s/%s-", day.UTC().Format("2006-01-02"), txnID)
	keys, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	callbacks := make([]ArchivedCallback, 0, len(keys))
	for _, key := range keys {
		body, err := a.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		callbacks = append(callbacks, ArchivedCallback{Key: key, Fields: fields})
	}
	return callbacks, nil
}

// NopCallbackArchiver is used when Spaces is not configured
type NopCallbackArchiver struct{}

func (NopCallbackArchiver) Archive(context.Context, string, map[string]interface{}) (string, error) {
	return "", nil
}
