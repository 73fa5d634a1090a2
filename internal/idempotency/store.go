// Package idempotency lets the admin API safely retry a mutating
// request (e.g. task creation) under the same Idempotency-Key without
// double-creating the resource. Grounded on the teacher's
// control_plane/idempotency/store.go. Responses are kept in the given
// Backend (e.g. Redis) when one is configured, else in an in-memory
// cache; a Backend error is treated as a miss, with no fallback to the
// in-memory cache.
package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Response struct {
	StatusCode int                 `json:"status_code"`
	Body       []byte              `json:"body"`
	Headers    map[string][]string `json:"headers"`
}

// Backend is the minimal Redis surface idempotency needs.
type Backend interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type entry struct {
	Resp      Response  `json:"resp"`
	Timestamp time.Time `json:"timestamp"`
}

type Store struct {
	backend Backend
	cache   sync.Map
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

const memoryTTL = time.Hour
const backendTTL = 24 * time.Hour

func (s *Store) Get(ctx context.Context, key string) (Response, bool) {
	if s.backend != nil {
		val, err := s.backend.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("idempotency: backend get failed")
			return Response{}, false
		}
		if val == "" {
			return Response{}, false
		}
		var e entry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return Response{}, false
		}
		return e.Resp, true
	}

	val, ok := s.cache.Load(key)
	if !ok {
		return Response{}, false
	}
	e := val.(entry)
	if time.Since(e.Timestamp) > memoryTTL {
		s.cache.Delete(key)
		return Response{}, false
	}
	return e.Resp, true
}

func (s *Store) Set(ctx context.Context, key string, resp Response) {
	e := entry{Resp: resp, Timestamp: time.Now()}

	if s.backend != nil {
		data, _ := json.Marshal(e)
		if err := s.backend.Set(ctx, key, string(data), backendTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("idempotency: backend set failed")
		}
		return
	}

	s.cache.Store(key, e)
}
