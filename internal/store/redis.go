package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/benedict2310/sitedrop/pkg/model"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key. Empty keeps the bare layout
	// (deployment:<id>, subdomain:<name>, user:<id>:deployments).
	Prefix string
}

// Redis stores deployments as JSON values with a subdomain index, a per-owner
// id set and a separate visitor counter per deployment.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server before returning.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("connect", err)
	}
	return NewRedisFromClient(client, opts.Prefix), nil
}

func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Client exposes the underlying connection so other components (rate limiting)
// can share it.
func (s *Redis) Client() *redis.Client {
	return s.client
}

func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) deploymentKey(id string) string {
	return s.prefix + "deployment:" + id
}

func (s *Redis) visitorsKey(id string) string {
	return s.prefix + "deployment:" + id + ":visitors"
}

func (s *Redis) subdomainKey(subdomain string) string {
	return s.prefix + "subdomain:" + subdomain
}

func (s *Redis) ownerKey(ownerID string) string {
	return s.prefix + "user:" + ownerID + ":deployments"
}

func (s *Redis) userKey(id string) string {
	return s.prefix + "user:" + id
}

func (s *Redis) emailKey(email string) string {
	return s.prefix + "user:email:" + email
}

func (s *Redis) CreateDeployment(ctx context.Context, d model.Deployment) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode deployment: %w", err)
	}
	subKey := s.subdomainKey(d.Subdomain)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, subKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSubdomainTaken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, subKey, d.ID, 0)
			pipe.Set(ctx, s.deploymentKey(d.ID), payload, 0)
			pipe.Set(ctx, s.visitorsKey(d.ID), d.VisitorCount, 0)
			if d.OwnerID != "" {
				pipe.SAdd(ctx, s.ownerKey(d.OwnerID), d.ID)
			}
			return nil
		})
		return err
	}, subKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSubdomainTaken), errors.Is(err, redis.TxFailedErr):
		return ErrSubdomainTaken
	default:
		return unavailable("create deployment", err)
	}
}

func (s *Redis) GetDeployment(ctx context.Context, id string) (model.Deployment, error) {
	out, err := s.getDeployments(ctx, []string{id})
	if err != nil {
		return model.Deployment{}, err
	}
	if len(out) == 0 {
		return model.Deployment{}, ErrNotFound
	}
	return out[0], nil
}

// getDeployments loads records and counters in one round trip. Missing ids
// are skipped.
func (s *Redis) getDeployments(ctx context.Context, ids []string) ([]model.Deployment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	records := make([]*redis.StringCmd, len(ids))
	counters := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		records[i] = pipe.Get(ctx, s.deploymentKey(id))
		counters[i] = pipe.Get(ctx, s.visitorsKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("get deployment", err)
	}

	out := make([]model.Deployment, 0, len(ids))
	for i, id := range ids {
		raw, err := records[i].Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, unavailable("get deployment", err)
		}
		var d model.Deployment
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, unavailable("decode deployment", fmt.Errorf("deployment %s: %w", id, err))
		}
		if d.ID == "" {
			d.ID = id
		}
		if n, err := counters[i].Int64(); err == nil {
			d.VisitorCount = n
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Redis) LookupSubdomain(ctx context.Context, subdomain string) (string, error) {
	id, err := s.client.Get(ctx, s.subdomainKey(subdomain)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", unavailable("lookup subdomain", err)
	}
	return id, nil
}

func (s *Redis) ListDeployments(ctx context.Context, ownerID string) ([]model.Deployment, error) {
	ids, err := s.client.SMembers(ctx, s.ownerKey(ownerID)).Result()
	if err != nil {
		return nil, unavailable("list deployments", err)
	}
	out, err := s.getDeployments(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// CountDeployments scans record keys. Counter keys share the prefix and are
// skipped.
func (s *Redis) CountDeployments(ctx context.Context) (int64, error) {
	ids, err := s.scanIDs(ctx, s.prefix+"deployment:")
	if err != nil {
		return 0, unavailable("count deployments", err)
	}
	return int64(len(ids)), nil
}

// scanIDs returns the id part of every key named <base><id>, ignoring keys
// with further segments such as user:email:<email> or deployment:<id>:visitors.
func (s *Redis) scanIDs(ctx context.Context, base string) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, base+"*", 500).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), base)
		if id == "" || strings.Contains(id, ":") {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Redis) PutDeployment(ctx context.Context, d model.Deployment) error {
	key := s.deploymentKey(d.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var stored model.Deployment
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode deployment %s: %w", d.ID, err)
		}
		payload, err := json.Marshal(keepIdentity(d, stored))
		if err != nil {
			return fmt.Errorf("encode deployment: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return unavailable("put deployment", err)
	}
}

func (s *Redis) DeleteDeployment(ctx context.Context, id string) error {
	key := s.deploymentKey(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var stored model.Deployment
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode deployment %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, s.visitorsKey(id), s.subdomainKey(stored.Subdomain))
			if stored.OwnerID != "" {
				pipe.SRem(ctx, s.ownerKey(stored.OwnerID), id)
			}
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return unavailable("delete deployment", err)
	}
}

// incrementVisitorsScript bumps the counter only while the record exists, so a
// visit racing DeleteDeployment cannot leave an orphaned counter behind.
// KEYS: record, counter. ARGV: seed for a missing counter.
var incrementVisitorsScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
redis.call("SETNX", KEYS[2], ARGV[1])
return redis.call("INCR", KEYS[2])
`)

func (s *Redis) IncrementVisitors(ctx context.Context, id string) (int64, error) {
	key := s.deploymentKey(id)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, unavailable("increment visitors", err)
	}
	// Records written without a counter key carry the count inline.
	var stored model.Deployment
	if err := json.Unmarshal(raw, &stored); err != nil {
		return 0, unavailable("decode deployment", fmt.Errorf("deployment %s: %w", id, err))
	}
	n, err := incrementVisitorsScript.Run(ctx, s.client, []string{key, s.visitorsKey(id)}, stored.VisitorCount).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, unavailable("increment visitors", err)
	}
	return n, nil
}

func (s *Redis) CreateUser(ctx context.Context, u model.User) error {
	u.Role = ""
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	ek := s.emailKey(u.Email)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, ek).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrEmailTaken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ek, u.ID, 0)
			pipe.Set(ctx, s.userKey(u.ID), payload, 0)
			return nil
		})
		return err
	}, ek)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmailTaken), errors.Is(err, redis.TxFailedErr):
		return ErrEmailTaken
	default:
		return unavailable("create user", err)
	}
}

func (s *Redis) GetUser(ctx context.Context, id string) (model.User, error) {
	raw, err := s.client.Get(ctx, s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, unavailable("get user", err)
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.User{}, unavailable("decode user", fmt.Errorf("user %s: %w", id, err))
	}
	return u, nil
}

func (s *Redis) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	id, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, unavailable("get user by email", err)
	}
	return s.GetUser(ctx, id)
}

func (s *Redis) ListUsers(ctx context.Context) ([]model.User, error) {
	ids, err := s.scanIDs(ctx, s.prefix+"user:")
	if err != nil {
		return nil, unavailable("list users", err)
	}
	out := []model.User{}
	if len(ids) == 0 {
		return out, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("list users", err)
	}
	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, unavailable("list users", err)
		}
		var u model.User
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, unavailable("decode user", fmt.Errorf("user %s: %w", ids[i], err))
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// PutUser replaces name and password hash. Email is immutable.
func (s *Redis) PutUser(ctx context.Context, u model.User) error {
	stored, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	stored.Name = u.Name
	stored.PasswordHash = u.PasswordHash
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.client.Set(ctx, s.userKey(u.ID), payload, 0).Err(); err != nil {
		return unavailable("put user", err)
	}
	return nil
}

func keepIdentity(next, stored model.Deployment) model.Deployment {
	next.ID = stored.ID
	next.Subdomain = stored.Subdomain
	next.OwnerID = stored.OwnerID
	next.CreatedAt = stored.CreatedAt
	next.VisitorCount = stored.VisitorCount
	return next
}

func sortNewestFirst(items []model.Deployment) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].ID > items[j].ID
	})
}
