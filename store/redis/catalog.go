package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/umrahops/courier/catalog"
)

// Event types are keyed by name: the catalog is name-addressed everywhere
// and the EventType entity serializes fully, so no separate model is needed.

func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	key := entityKey(prefixEventType, et.Definition.Name)

	var existing catalog.EventType
	err := s.getEntity(ctx, key, &existing)
	switch {
	case err == nil:
		// Upsert keeps the original identity.
		et.ID = existing.ID
		et.CreatedAt = existing.CreatedAt
		et.UpdatedAt = now()
	case isRedisNil(err):
	default:
		return fmt.Errorf("courier/redis: register type: %w", err)
	}

	if err := s.setEntity(ctx, key, et); err != nil {
		return fmt.Errorf("courier/redis: register type: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zEventTypeAll, goredis.Z{
		Score:  scoreFromTime(et.CreatedAt),
		Member: et.Definition.Name,
	}).Err(); err != nil {
		return fmt.Errorf("courier/redis: register type index: %w", err)
	}
	return nil
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	var et catalog.EventType
	if err := s.getEntity(ctx, entityKey(prefixEventType, name), &et); err != nil {
		if isRedisNil(err) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("courier/redis: get type: %w", err)
	}
	return &et, nil
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	names, err := s.rdb.ZRange(ctx, zEventTypeAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list types: %w", err)
	}

	result := make([]*catalog.EventType, 0, len(names))
	for _, name := range names {
		var et catalog.EventType
		if err := s.getEntity(ctx, entityKey(prefixEventType, name), &et); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		result = append(result, &et)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) DeleteType(ctx context.Context, name string) error {
	et, err := s.GetType(ctx, name)
	if err != nil {
		return err
	}

	deprecatedAt := time.Now().UTC()
	et.IsDeprecated = true
	et.DeprecatedAt = &deprecatedAt
	et.UpdatedAt = deprecatedAt

	if err := s.setEntity(ctx, entityKey(prefixEventType, name), et); err != nil {
		return fmt.Errorf("courier/redis: delete type: %w", err)
	}
	return nil
}
