package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openmiclive/lineup/internal/domain"
	apperrors "github.com/openmiclive/lineup/internal/errors"
	repo "github.com/openmiclive/lineup/internal/repository"
	"github.com/openmiclive/lineup/internal/transition"
	"github.com/openmiclive/lineup/pkg/logger"
)

// redisSignupRepository stores one JSON blob per signup, a set of signup
// ids per event, and a per-event stage key holding the id of the signup
// currently singing. The stage key is what makes the one-singing-per-event
// invariant hold across staff sessions.
type redisSignupRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisSignupRepository(cli *redis.Client, l logger.Logger) repo.SignupRepository {
	return &redisSignupRepository{cli: cli, l: l}
}

// claimStage sets the stage key to the given signup id unless another id
// already holds it.
var claimStage = redis.NewScript(`
	local holder = redis.call('GET', KEYS[1])
	if holder and holder ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1])
	return 1
`)

// releaseStage clears the stage key only when the given id holds it.
var releaseStage = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		redis.call('DEL', KEYS[1])
	end
	return 1
`)

func (r *redisSignupRepository) ListSignups(ctx context.Context, eventID string) ([]domain.Signup, error) {
	ids, err := r.cli.SMembers(ctx, r.eventKey(eventID)).Result()
	if err != nil {
		r.l.Error("redisSignupRepository.ListSignups", "event_id", eventID, "error", err)
		return nil, apperrors.NewTransientIOError("list signups", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.signupKey(id)
	}
	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		r.l.Error("redisSignupRepository.ListSignups mget", "event_id", eventID, "error", err)
		return nil, apperrors.NewTransientIOError("list signups", err)
	}

	out := make([]domain.Signup, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Deleted elsewhere; drop the dangling member.
			r.cli.SRem(ctx, r.eventKey(eventID), ids[i])
			continue
		}
		var su domain.Signup
		if err := json.Unmarshal([]byte(raw), &su); err != nil {
			r.l.Warn("skipping undecodable signup record", "id", ids[i], "error", err)
			continue
		}
		out = append(out, su)
	}
	return out, nil
}

func (r *redisSignupRepository) GetSignup(ctx context.Context, id string) (*domain.Signup, error) {
	raw, err := r.cli.Get(ctx, r.signupKey(id)).Result()
	if err == redis.Nil {
		return nil, apperrors.NewNotFoundError(id)
	}
	if err != nil {
		r.l.Error("redisSignupRepository.GetSignup", "id", id, "error", err)
		return nil, apperrors.NewTransientIOError("get signup", err)
	}
	var su domain.Signup
	if err := json.Unmarshal([]byte(raw), &su); err != nil {
		return nil, fmt.Errorf("decode signup %s: %w", id, err)
	}
	return &su, nil
}

func (r *redisSignupRepository) CreateSignup(ctx context.Context, su *domain.Signup) (*domain.Signup, error) {
	rec := su.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = domain.StatusQueued
	}
	if rec.PriorityOrder == 0 {
		// Monotonically increasing arrival order per event.
		n, err := r.cli.Incr(ctx, r.orderKey(rec.EventID)).Result()
		if err != nil {
			return nil, apperrors.NewTransientIOError("allocate priority order", err)
		}
		rec.PriorityOrder = int(n)
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if err := r.save(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.cli.SAdd(ctx, r.eventKey(rec.EventID), rec.ID).Err(); err != nil {
		return nil, apperrors.NewTransientIOError("index signup", err)
	}

	r.l.Debug("signup created", "id", rec.ID, "event_id", rec.EventID, "priority_order", rec.PriorityOrder)
	return rec, nil
}

func (r *redisSignupRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, note string) (*domain.Signup, error) {
	su, err := r.GetSignup(ctx, id)
	if err != nil {
		return nil, err
	}
	// An illegal move means the caller held a stale record.
	if !transition.Can(su.Status, status) {
		return nil, apperrors.NewConflictError(id, "cannot move from %s to %s", su.Status, status)
	}

	if status == domain.StatusSinging {
		ok, err := claimStage.Run(ctx, r.cli, []string{r.stageKey(su.EventID)}, id).Int()
		if err != nil {
			return nil, apperrors.NewTransientIOError("claim stage", err)
		}
		if ok == 0 {
			return nil, apperrors.NewConflictError(id, "another signup is already singing")
		}
		t := time.Now()
		su.StartedAt = &t
	}
	if su.Status == domain.StatusSinging && status != domain.StatusSinging {
		if err := releaseStage.Run(ctx, r.cli, []string{r.stageKey(su.EventID)}, id).Err(); err != nil {
			return nil, apperrors.NewTransientIOError("release stage", err)
		}
	}

	su.Status = status
	if note != "" {
		su.Note = note
	}
	su.UpdatedAt = time.Now()

	if err := r.save(ctx, su); err != nil {
		return nil, err
	}

	r.l.Debug("signup status updated", "id", id, "status", status)
	return su, nil
}

func (r *redisSignupRepository) Reorder(ctx context.Context, id string, priorityOrder int) (*domain.Signup, error) {
	su, err := r.GetSignup(ctx, id)
	if err != nil {
		return nil, err
	}
	su.PriorityOrder = priorityOrder
	su.UpdatedAt = time.Now()
	if err := r.save(ctx, su); err != nil {
		return nil, err
	}
	r.l.Debug("signup reordered", "id", id, "priority_order", priorityOrder)
	return su, nil
}

func (r *redisSignupRepository) RecordNotification(ctx context.Context, id string, notifiedAt time.Time, notifyErr string) (*domain.Signup, error) {
	su, err := r.GetSignup(ctx, id)
	if err != nil {
		return nil, err
	}
	t := notifiedAt
	su.NotifiedAt = &t
	su.NotifyError = notifyErr
	su.UpdatedAt = time.Now()
	if err := r.save(ctx, su); err != nil {
		return nil, err
	}
	return su, nil
}

func (r *redisSignupRepository) DeleteSignup(ctx context.Context, id string) error {
	su, err := r.GetSignup(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.cli.Pipeline()
	pipe.Del(ctx, r.signupKey(id))
	pipe.SRem(ctx, r.eventKey(su.EventID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Error("redisSignupRepository.DeleteSignup", "id", id, "error", err)
		return apperrors.NewTransientIOError("delete signup", err)
	}
	if su.Status == domain.StatusSinging {
		if err := releaseStage.Run(ctx, r.cli, []string{r.stageKey(su.EventID)}, id).Err(); err != nil {
			return apperrors.NewTransientIOError("release stage", err)
		}
	}

	r.l.Debug("signup deleted", "id", id)
	return nil
}

func (r *redisSignupRepository) save(ctx context.Context, su *domain.Signup) error {
	raw, err := json.Marshal(su)
	if err != nil {
		return fmt.Errorf("encode signup %s: %w", su.ID, err)
	}
	if err := r.cli.Set(ctx, r.signupKey(su.ID), raw, 0).Err(); err != nil {
		r.l.Error("redisSignupRepository.save", "id", su.ID, "error", err)
		return apperrors.NewTransientIOError("save signup", err)
	}
	return nil
}

func (r *redisSignupRepository) signupKey(id string) string {
	return fmt.Sprintf("lineup:signup:%s", id)
}

func (r *redisSignupRepository) eventKey(eventID string) string {
	return fmt.Sprintf("lineup:event:%s:signups", eventID)
}

func (r *redisSignupRepository) stageKey(eventID string) string {
	return fmt.Sprintf("lineup:event:%s:stage", eventID)
}

func (r *redisSignupRepository) orderKey(eventID string) string {
	return fmt.Sprintf("lineup:event:%s:order", eventID)
}
