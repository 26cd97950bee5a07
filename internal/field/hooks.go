package field

import (
	"context"
	"fmt"

	"stdimage/internal/naming"
)

// Stored is what a record persists about its image.
type Stored struct {
	Key    string
	Width  int
	Height int
	State  State
}

// Record is a persisted record owning the field.
type Record interface {
	naming.Instance
	Stored() Stored
	BindImage(*ImageFile)
}

// Event is passed to lifecycle hooks. Previous is the stored image before a
// save and is nil on load and delete.
type Event struct {
	Record   Record
	Previous *Stored
}

type Hook func(ctx context.Context, ev Event) error

// EventSource is implemented by whatever persists records. Load and save
// hooks run after the record is read or written; delete hooks run before the
// record is removed.
type EventSource interface {
	OnLoad(route string, hook Hook)
	OnSave(route string, hook Hook)
	OnDelete(route string, hook Hook)
}

// Contribute registers the field's hooks with src.
func (f *Field) Contribute(src EventSource) {
	src.OnLoad(f.Route, f.onLoad)
	src.OnSave(f.Route, f.onSave)
	src.OnDelete(f.Route, f.onDelete)
}

func (f *Field) bind(rec Record) *ImageFile {
	s := rec.Stored()
	file := f.Attach(s.Key, s.Width, s.Height, s.State)
	rec.BindImage(file)
	return file
}

func (f *Field) onLoad(_ context.Context, ev Event) error {
	f.bind(ev.Record)
	return nil
}

// onSave removes the files of the previous image when the record now points
// at another key or at none.
func (f *Field) onSave(ctx context.Context, ev Event) error {
	const op = "field.onSave"

	f.bind(ev.Record)
	prev := ev.Previous
	if prev == nil || prev.Key == "" || prev.Key == ev.Record.Stored().Key {
		return nil
	}
	if err := f.Delete(ctx, f.Attach(prev.Key, prev.Width, prev.Height, prev.State)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (f *Field) onDelete(ctx context.Context, ev Event) error {
	const op = "field.onDelete"

	file := f.bind(ev.Record)
	if err := f.Delete(ctx, file); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ev.Record.BindImage(nil)
	return nil
}
