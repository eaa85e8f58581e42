package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/recur"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/internal/entity"
	"github.com/xraph/recur/recurrence"
)

// ruleModel is the JSON representation stored in Redis.
type ruleModel struct {
	ID                 string     `json:"id"`
	OrganizationID     string     `json:"organization_id"`
	BaseEventID        string     `json:"base_event_id"`
	Pattern            string     `json:"pattern"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	OccurrenceLimit    *int       `json:"occurrence_limit,omitempty"`
	LatestInstanceDate time.Time  `json:"latest_instance_date"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toRuleModel(r *recurrence.Rule) *ruleModel {
	return &ruleModel{
		ID:                 r.ID.String(),
		OrganizationID:     r.OrganizationID,
		BaseEventID:        r.BaseEventID.String(),
		Pattern:            string(r.Pattern),
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		OccurrenceLimit:    r.OccurrenceLimit,
		LatestInstanceDate: r.LatestInstanceDate,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func fromRuleModel(m *ruleModel) (*recurrence.Rule, error) {
	ruleID, err := id.ParseRuleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse rule ID %q: %w", m.ID, err)
	}
	baseID, err := id.ParseEventID(m.BaseEventID)
	if err != nil {
		return nil, fmt.Errorf("parse base event ID %q: %w", m.BaseEventID, err)
	}
	return &recurrence.Rule{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                 ruleID,
		OrganizationID:     m.OrganizationID,
		BaseEventID:        baseID,
		Pattern:            recurrence.Pattern(m.Pattern),
		StartDate:          m.StartDate.UTC(),
		EndDate:            m.EndDate,
		OccurrenceLimit:    m.OccurrenceLimit,
		LatestInstanceDate: m.LatestInstanceDate.UTC(),
	}, nil
}

func (s *Store) CreateRule(ctx context.Context, r *recurrence.Rule) error {
	m := toRuleModel(r)

	if err := s.setEntity(ctx, entityKey(prefixRule, m.ID), m); err != nil {
		return fmt.Errorf("recur/redis: create rule: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zRuleOrg+m.OrganizationID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zRuleCheckpoint+m.OrganizationID, goredis.Z{Score: scoreFromDate(m.LatestInstanceDate), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recur/redis: create rule indexes: %w", err)
	}
	return nil
}

func (s *Store) GetRule(ctx context.Context, ruleID id.ID) (*recurrence.Rule, error) {
	m, err := s.getRuleModel(ctx, ruleID.String())
	if err != nil {
		return nil, err
	}
	return fromRuleModel(m)
}

func (s *Store) ListRules(ctx context.Context, orgID string, opts recurrence.ListOpts) ([]*recurrence.Rule, error) {
	ids, err := s.rdb.ZRange(ctx, zRuleOrg+orgID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("recur/redis: list rules: %w", err)
	}

	result, err := s.loadRules(ctx, ids)
	if err != nil {
		return nil, err
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) DeleteRule(ctx context.Context, ruleID id.ID) error {
	m, err := s.getRuleModel(ctx, ruleID.String())
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, entityKey(prefixRule, m.ID))
	pipe.ZRem(ctx, zRuleOrg+m.OrganizationID, m.ID)
	pipe.ZRem(ctx, zRuleCheckpoint+m.OrganizationID, m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recur/redis: delete rule: %w", err)
	}
	return nil
}

func (s *Store) ListRulesNeedingAdvance(ctx context.Context, orgID string, horizon time.Time) ([]*recurrence.Rule, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, zRuleCheckpoint+orgID, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(scoreFromDate(horizon), 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("recur/redis: list rules needing advance: %w", err)
	}
	slices.Sort(ids)

	return s.loadRules(ctx, ids)
}

// AdvanceCheckpoint writes the new checkpoint and every instance in one
// MULTI/EXEC block guarded by WATCH on the rule key.
func (s *Store) AdvanceCheckpoint(ctx context.Context, adv *recurrence.Advance) error {
	key := entityKey(prefixRule, adv.RuleID.String())

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if isRedisNil(err) {
				return recur.ErrCheckpointConflict
			}
			return err
		}

		var m ruleModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		if !m.LatestInstanceDate.Equal(recurrence.Day(adv.Expected)) {
			return recur.ErrCheckpointConflict
		}

		m.LatestInstanceDate = recurrence.Day(adv.Checkpoint)
		m.UpdatedAt = now()
		ruleRaw, err := json.Marshal(&m)
		if err != nil {
			return err
		}

		instances := make([]*eventModel, len(adv.Instances))
		encoded := make([][]byte, len(adv.Instances))
		for i, inst := range adv.Instances {
			instances[i] = toEventModel(inst)
			if encoded[i], err = json.Marshal(instances[i]); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, ruleRaw, 0)
			pipe.ZAdd(ctx, zRuleCheckpoint+m.OrganizationID, goredis.Z{Score: scoreFromDate(m.LatestInstanceDate), Member: m.ID})
			for i, em := range instances {
				pipe.Set(ctx, entityKey(prefixEvent, em.ID), encoded[i], 0)
				pipe.ZAdd(ctx, zEventOrg+em.OrganizationID, goredis.Z{Score: scoreFromDate(em.OccurrenceDate), Member: em.ID})
				pipe.SAdd(ctx, sRuleInstances+m.ID, em.ID)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.TxFailedErr), errors.Is(err, recur.ErrCheckpointConflict):
		return recur.ErrCheckpointConflict
	default:
		return fmt.Errorf("recur/redis: advance checkpoint: %w", err)
	}
}

func (s *Store) getRuleModel(ctx context.Context, ruleID string) (*ruleModel, error) {
	var m ruleModel
	if err := s.getEntity(ctx, entityKey(prefixRule, ruleID), &m); err != nil {
		if isNotFound(err) {
			return nil, recur.ErrRuleNotFound
		}
		return nil, fmt.Errorf("recur/redis: get rule: %w", err)
	}
	return &m, nil
}

// loadRules resolves rule IDs in order, skipping entries whose entity has
// already been removed.
func (s *Store) loadRules(ctx context.Context, ids []string) ([]*recurrence.Rule, error) {
	result := make([]*recurrence.Rule, 0, len(ids))
	for _, ruleID := range ids {
		m, err := s.getRuleModel(ctx, ruleID)
		if err != nil {
			if errors.Is(err, recur.ErrRuleNotFound) {
				continue
			}
			return nil, err
		}
		r, err := fromRuleModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}
