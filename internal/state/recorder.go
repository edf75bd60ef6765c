package state

import (
	"context"
	"time"
)

// Recorder receives a copy of every successful attribute write.
type Recorder interface {
	RecordAttribute(name string, value any, at time.Time)
}

type recordingStore struct {
	Store
	rec Recorder
}

// WithRecorder returns a Store that forwards successful Sets to rec.
// A nil rec returns s unchanged.
func WithRecorder(s Store, rec Recorder) Store {
	if rec == nil {
		return s
	}
	return &recordingStore{Store: s, rec: rec}
}

func (r *recordingStore) Set(ctx context.Context, name string, value any) error {
	if err := r.Store.Set(ctx, name, value); err != nil {
		return err
	}
	r.rec.RecordAttribute(name, value, time.Now().UTC())
	return nil
}
