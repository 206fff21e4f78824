package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/history"
	"github.com/lexlapax/recall/pkg/model"
)

// Action tags understood by apply. NOOP is accepted as a synonym for NONE.
const (
	actionAdd    = "ADD"
	actionUpdate = "UPDATE"
	actionDelete = "DELETE"
	actionNone   = "NONE"
	actionNoop   = "NOOP"
)

// action is one decision returned by the model.
type action struct {
	ID        actionID `json:"id"`
	Text      string   `json:"text"`
	Event     string   `json:"event"`
	OldMemory string   `json:"old_memory"`
}

// actionID accepts ids written as JSON strings or numbers.
type actionID string

func (id *actionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = actionID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = actionID(n.String())
	return nil
}

func (r *run) apply(ctx context.Context, a action) error {
	tag := strings.ToUpper(strings.TrimSpace(a.Event))
	switch tag {
	case actionAdd:
		text := strings.TrimSpace(a.Text)
		if text == "" {
			r.logger.WarnContext(ctx, "Skipping ADD without text")
			return nil
		}
		return r.insert(ctx, text)
	case actionUpdate:
		return r.update(ctx, string(a.ID), strings.TrimSpace(a.Text))
	case actionDelete:
		return r.remove(ctx, string(a.ID))
	case actionNone, actionNoop:
		r.logger.DebugContext(ctx, "No change needed", "id", string(a.ID))
		return nil
	default:
		r.logger.WarnContext(ctx, "Unrecognized memory action", "event", a.Event, "id", string(a.ID))
		return nil
	}
}

// insert stores text as a new scoped memory, unless the encode hook drops it.
func (r *run) insert(ctx context.Context, text string) error {
	text, keep := r.hooks.BeforeEncode(ctx, text, r.scope)
	if !keep {
		r.logger.DebugContext(ctx, "Memory dropped by script hook")
		return nil
	}

	rec := model.NewRecord(text, r.metadata, r.scope)
	emb, err := r.embed(ctx, text)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, rec, emb); err != nil {
		return err
	}
	if err := r.record(ctx, history.NewEntry(rec.ID, model.EventAdd, "", text)); err != nil {
		return err
	}

	r.hooks.AfterEncode(ctx, rec)

	r.events = append(r.events, model.MemoryEvent{ID: rec.ID, Event: model.EventAdd, Memory: text})
	r.logger.DebugContext(ctx, "Added memory", "id", rec.ID)
	return nil
}

// resolve maps a temporary id to the stored record, or returns nil when it cannot.
func (r *run) resolve(ctx context.Context, tempID, tag string) (*model.MemoryRecord, error) {
	id, ok := r.tempIDs[tempID]
	if !ok {
		r.logger.WarnContext(ctx, "Skipping action with unknown memory id", "event", tag, "id", tempID)
		return nil, nil
	}
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		r.logger.WarnContext(ctx, "Skipping action for memory that no longer exists", "event", tag, "id", id)
	}
	return rec, nil
}

// update replaces the content of an existing memory, keeping its scope,
// metadata and creation time.
func (r *run) update(ctx context.Context, tempID, text string) error {
	if text == "" {
		r.logger.WarnContext(ctx, "Skipping UPDATE without text", "id", tempID)
		return nil
	}
	existing, err := r.resolve(ctx, tempID, actionUpdate)
	if err != nil || existing == nil {
		return err
	}
	if existing.Content == text {
		r.logger.DebugContext(ctx, "Skipping UPDATE with unchanged text", "id", existing.ID)
		return nil
	}

	emb, err := r.embed(ctx, text)
	if err != nil {
		return err
	}
	updated := existing.Clone()
	updated.Content = text
	updated.UpdatedAt = time.Now().UTC()

	if err := r.store.Update(ctx, existing.ID, emb, updated); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			r.logger.WarnContext(ctx, "Skipping UPDATE for memory removed concurrently", "id", existing.ID)
			return nil
		}
		return err
	}
	if err := r.record(ctx, history.NewEntry(existing.ID, model.EventUpdate, existing.Content, text)); err != nil {
		return err
	}

	r.events = append(r.events, model.MemoryEvent{
		ID:             existing.ID,
		Event:          model.EventUpdate,
		Memory:         text,
		PreviousMemory: existing.Content,
	})
	r.logger.DebugContext(ctx, "Updated memory", "id", existing.ID)
	return nil
}

// remove deletes an existing memory.
func (r *run) remove(ctx context.Context, tempID string) error {
	existing, err := r.resolve(ctx, tempID, actionDelete)
	if err != nil || existing == nil {
		return err
	}

	if err := r.store.Delete(ctx, existing.ID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			r.logger.WarnContext(ctx, "Skipping DELETE for memory removed concurrently", "id", existing.ID)
			return nil
		}
		return err
	}
	if err := r.record(ctx, history.NewEntry(existing.ID, model.EventDelete, existing.Content, "")); err != nil {
		return err
	}

	r.events = append(r.events, model.MemoryEvent{ID: existing.ID, Event: model.EventDelete, Memory: existing.Content})
	r.logger.DebugContext(ctx, "Deleted memory", "id", existing.ID)
	return nil
}
