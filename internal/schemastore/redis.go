// Copyright 2025 Tom Barlow
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

// Package schemastore provides a Redis-backed catalog.SchemaSource.
package schemastore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

const defaultRedisURL = "redis://localhost:6379"

var _ catalog.SchemaSource = (*Store)(nil)

// Store keeps payload schemas in Redis: one string key per ref plus a sorted
// set indexing every registered ref.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. The default is "stepflow:schema".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New connects to the Redis server at url.
func New(url string, opts ...Option) (*Store, error) {
	if url == "" {
		url = defaultRedisURL
	}
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &errors.ConfigError{Key: "schemas.redis_url", Reason: "invalid redis url", Cause: err}
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:     []string{ropts.Addr},
		Username:  ropts.Username,
		Password:  ropts.Password,
		DB:        ropts.DB,
		TLSConfig: ropts.TLSConfig,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &errors.UnavailableError{Service: "schema registry", Cause: err}
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: "stepflow:schema"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Register stores a schema under ref.
func (s *Store) Register(ctx context.Context, ref string, sc *schema.Schema) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return &errors.ValidationError{Field: "ref", Message: "schema ref required"}
	}
	if sc == nil {
		return &errors.ValidationError{Field: "schema", Message: "schema body required"}
	}
	body, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode schema %s: %w", ref, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(ref), body, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(time.Now().Unix()), Member: ref})
	_, err = pipe.Exec(ctx)
	return err
}

// Delete removes a schema.
func (s *Store) Delete(ctx context.Context, ref string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(ref))
	pipe.ZRem(ctx, s.indexKey(), ref)
	_, err := pipe.Exec(ctx)
	return err
}

// Import registers every schema of src.
func (s *Store) Import(ctx context.Context, src catalog.SchemaSource) (int, error) {
	refs, err := src.ListRefs(ctx)
	if err != nil {
		return 0, err
	}
	for i, ref := range refs {
		sc, err := src.GetSchema(ctx, ref)
		if err != nil {
			return i, err
		}
		if err := s.Register(ctx, ref, sc); err != nil {
			return i, fmt.Errorf("register %s: %w", ref, err)
		}
	}
	return len(refs), nil
}

// GetSchema implements catalog.SchemaSource.
func (s *Store) GetSchema(ctx context.Context, ref string) (*schema.Schema, error) {
	body, err := s.client.Get(ctx, s.key(ref)).Bytes()
	if err == redis.Nil {
		return nil, &errors.NotFoundError{Resource: "schema", ID: ref}
	}
	if err != nil {
		return nil, err
	}
	sc, err := schema.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", ref, err)
	}
	return sc, nil
}

// ListRefs implements catalog.SchemaSource. Refs are sorted.
func (s *Store) ListRefs(ctx context.Context) ([]string, error) {
	refs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(refs)
	return refs, nil
}

func (s *Store) key(ref string) string {
	return s.prefix + ":" + ref
}

func (s *Store) indexKey() string {
	return s.prefix + ":index"
}
