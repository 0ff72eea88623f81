/*
Copyright 2025 The Tesslate Studio Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package activity records when a project was last touched. The idle reaper
// reads these timestamps to decide hibernation. Tracking is best-effort:
// a failed write never fails the operation that triggered it.
package activity

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// Store records and reads per-project activity timestamps.
type Store interface {
	// Touch records activity for a project now.
	Touch(ctx context.Context, projectID string)
	// Last returns the last recorded activity, or zero time when none.
	Last(ctx context.Context, projectID string) time.Time
	// Forget drops the entry, called when a project is torn down.
	Forget(ctx context.Context, projectID string)
}

// MemoryStore is the process-local Store used in tests and when no Redis
// address is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time

	// now is swappable for tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]time.Time{}, now: time.Now}
}

func (s *MemoryStore) Touch(_ context.Context, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[projectID] = s.now()
}

func (s *MemoryStore) Last(_ context.Context, projectID string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[projectID]
}

func (s *MemoryStore) Forget(_ context.Context, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, projectID)
}

// SetNow overrides the clock (test helper).
func (s *MemoryStore) SetNow(now func() time.Time) { s.now = now }

// RedisStore shares activity timestamps across orchestrator replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func key(projectID string) string {
	return fmt.Sprintf("activity:%s", projectID)
}

func (s *RedisStore) Touch(ctx context.Context, projectID string) {
	if err := s.client.Set(ctx, key(projectID), time.Now().UnixMilli(), 0).Err(); err != nil {
		log.Entry(ctx).Warnf("recording activity for %s: %v", projectID, err)
	}
}

func (s *RedisStore) Last(ctx context.Context, projectID string) time.Time {
	val, err := s.client.Get(ctx, key(projectID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Entry(ctx).Warnf("reading activity for %s: %v", projectID, err)
		}
		return time.Time{}
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s *RedisStore) Forget(ctx context.Context, projectID string) {
	if err := s.client.Del(ctx, key(projectID)).Err(); err != nil {
		log.Entry(ctx).Warnf("forgetting activity for %s: %v", projectID, err)
	}
}
