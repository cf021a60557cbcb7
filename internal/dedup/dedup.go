// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dedup tracks recently ingested external email ids in a Redis
// SET with TTL. Batch and backfill ingestion use it to skip messages that
// were already stored without a database round trip. The store's unique
// constraint on email_id remains the source of truth; this filter is only
// a fast path.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a seen external email id.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "mailstore:seen:"
)

// Filter tracks which external email ids have already been ingested.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A zero ttl selects
// DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{rdb: rdb, ttl: ttl}
}

// IsNew returns true if the external email id has NOT been seen before.
// If true, the id is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, emailID string) (bool, error) {
	key := fmt.Sprintf("%s%s", keyPrefix, emailID)

	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Forget removes an id from the seen set, e.g. after a failed ingestion
// so the next attempt is not skipped.
func (f *Filter) Forget(ctx context.Context, emailID string) error {
	return f.rdb.Del(ctx, keyPrefix+emailID).Err()
}

// Ping checks the Redis connection.
func (f *Filter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return f.rdb.Ping(ctx).Err()
}
