package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
	"github.com/redis/go-redis/v9"
)

var _ Repo = (*RedisRepo)(nil)

const (
	fieldCreatedAt  = "created_at"
	fieldLastAccess = "last_access"
	valuePrefix     = "v:"
)

// Each session is one hash. Scripts keep "exists" checks and writes atomic so
// an expired key is never brought back to life by a late write.
var (
	touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return false end
redis.call('HSET', KEYS[1], 'last_access', ARGV[1])
if tonumber(ARGV[2]) > 0 then redis.call('PEXPIRE', KEYS[1], ARGV[2]) end
return redis.call('HGETALL', KEYS[1])
`)

	updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], 'last_access', ARGV[3])
if tonumber(ARGV[4]) > 0 then redis.call('PEXPIRE', KEYS[1], ARGV[4]) end
return 1
`)

	createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
if tonumber(ARGV[1]) > 0 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return 1
`)
)

// RedisRepo stores sessions in Redis. Expiry is delegated to key TTLs which
// are pushed forward on every access, so DeleteExpired has nothing to do.
type RedisRepo struct {
	client *redis.Client
	prefix string
	idle   time.Duration
	now    Clock
}

// NewRedisRepo creates a Redis-backed session repository.
func NewRedisRepo(client *redis.Client, prefix string, idle time.Duration, now Clock) *RedisRepo {
	if prefix == "" {
		prefix = "session:"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRepo{
		client: client,
		prefix: prefix,
		idle:   idle,
		now:    now,
	}
}

// DialRedis connects to addr and checks the server answers
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable(err)
	}
	return client, nil
}

func (r *RedisRepo) key(token string) string {
	return r.prefix + token
}

func (r *RedisRepo) ttlMillis() int64 {
	return r.idle.Milliseconds()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
}

func (r *RedisRepo) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	now := r.now()
	fields, err := touchScript.Run(ctx, r.client, []string{r.key(token)}, formatTime(now), r.ttlMillis()).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	s := newSession(token, now)
	for i := 0; i+1 < len(fields); i += 2 {
		name, raw := fields[i], fields[i+1]
		switch {
		case name == fieldCreatedAt:
			s.CreatedAt = parseTime(raw)
		case name == fieldLastAccess:
			s.LastAccess = parseTime(raw)
		case strings.HasPrefix(name, valuePrefix):
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("session: failed to decode %s: %w", name, err)
			}
			s.Values[strings.TrimPrefix(name, valuePrefix)] = v
		}
	}
	return &s, nil
}

func (r *RedisRepo) Create(ctx context.Context, token string, values map[string]any) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	now := formatTime(r.now())
	args := []any{r.ttlMillis(), fieldCreatedAt, now, fieldLastAccess, now}
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("session: failed to encode %s: %w", k, err)
		}
		args = append(args, valuePrefix+k, string(data))
	}

	created, err := createScript.Run(ctx, r.client, []string{r.key(token)}, args...).Int()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return errTokenInUse
	}
	return nil
}

func (r *RedisRepo) Update(ctx context.Context, token, key string, value any) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: failed to encode %s: %w", key, err)
	}

	updated, err := updateScript.Run(ctx, r.client, []string{r.key(token)},
		valuePrefix+key, string(data), formatTime(r.now()), r.ttlMillis()).Int()
	if err != nil {
		return unavailable(err)
	}
	if updated == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpired is a no-op; Redis drops idle sessions through key TTLs.
func (r *RedisRepo) DeleteExpired(context.Context) (int, error) {
	return 0, nil
}

func (r *RedisRepo) Close() error {
	return r.client.Close()
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}
