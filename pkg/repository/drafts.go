package repository

import (
	"context"
	"fmt"

	"github.com/maintlog/maintlog/pkg/stores"
	"github.com/maintlog/maintlog/pkg/telemetry"
)

// SaveDraft keeps a partially filled form. Forms with no key field set
// return stores.ErrDraftEmpty and nothing is written.
func (r *Repository) SaveDraft(ctx context.Context, fields stores.Payload) (stores.DraftInfo, error) {
	info, err := r.drafts.Save(ctx, fields)
	if err != nil {
		return stores.DraftInfo{}, fmt.Errorf("save draft: %w", err)
	}
	r.notifyDraft(ctx, telemetry.EventTypeDraftSaved, info.Token)
	return info, nil
}

// ListDrafts returns readable drafts, newest first.
func (r *Repository) ListDrafts(ctx context.Context) ([]stores.DraftInfo, error) {
	return r.drafts.List(ctx)
}

// LoadDraft returns a draft without removing it.
func (r *Repository) LoadDraft(ctx context.Context, token string) (stores.Draft, error) {
	return r.drafts.Load(ctx, token)
}

// ConsumeDraft loads a draft and then deletes it. A failed delete is logged
// and the draft is still returned.
func (r *Repository) ConsumeDraft(ctx context.Context, token string) (stores.Draft, error) {
	draft, err := r.drafts.Load(ctx, token)
	if err != nil {
		return stores.Draft{}, err
	}
	if err := r.drafts.Delete(ctx, token); err != nil {
		r.log.Warn().Err(err).Str("token", token).Msg("consumed draft not removed")
		return draft, nil
	}
	r.notifyDraft(ctx, telemetry.EventTypeDraftDeleted, token)
	return draft, nil
}

// DeleteDraft removes one draft.
func (r *Repository) DeleteDraft(ctx context.Context, token string) error {
	if err := r.drafts.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	r.notifyDraft(ctx, telemetry.EventTypeDraftDeleted, token)
	return nil
}

// DeleteAllDrafts removes every draft and returns how many went.
func (r *Repository) DeleteAllDrafts(ctx context.Context) (int, error) {
	n, err := r.drafts.DeleteAll(ctx)
	if n > 0 {
		r.notifyDraft(ctx, telemetry.EventTypeDraftDeleted, "*")
	}
	if err != nil {
		return n, fmt.Errorf("delete drafts: %w", err)
	}
	return n, nil
}

func (r *Repository) notifyDraft(ctx context.Context, eventType, token string) {
	if err := r.events.PublishDraftChanged(eventType, token); err != nil {
		r.log.Debug().Err(err).Msg("failed to publish event")
	}
	r.record(ctx, eventType, nil, &token, nil)
}
