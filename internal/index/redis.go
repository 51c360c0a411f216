package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/token"
)

// Redis implements Index across a cluster: one Lua script performs the
// read-compare-write atomically so concurrent projector instances never
// race on the last-writer-wins check.
type Redis struct {
	client       *redis.Client
	prefix       string
	issuerPrefix string
}

// RedisConfig configures the replicated index's Redis connection.
type RedisConfig struct {
	URL       string
	KeyPrefix string
}

// NewRedis constructs a Redis-backed Index, pinging the connection before
// returning, mirroring NewRedisLimiter.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("index: redis URL not configured")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("index: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("index: connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "realms-index"
	}
	log.Info().Str("prefix", prefix).Msg("redis realm index initialized")

	return &Redis{client: client, prefix: prefix, issuerPrefix: prefix + ":issuer"}, nil
}

// wireResource is the JSON encoding stored in Redis; Resource itself is not
// marshaled directly so its pointer fields round-trip unambiguously.
type wireResource struct {
	ID         string                `json:"id"`
	Rev        int                   `json:"rev"`
	Types      []string              `json:"types"`
	CreatedAt  time.Time             `json:"createdAt"`
	CreatedBy  string                `json:"createdBy"`
	UpdatedAt  time.Time             `json:"updatedAt"`
	UpdatedBy  string                `json:"updatedBy"`
	Deprecated bool                  `json:"deprecated"`
	Active     *ActiveProjection     `json:"active,omitempty"`
	Frozen     *DeprecatedProjection `json:"frozen,omitempty"`
}

func toWire(r Resource) wireResource {
	return wireResource{
		ID: string(r.ID), Rev: r.Rev, Types: r.Types,
		CreatedAt: r.CreatedAt, CreatedBy: r.CreatedBy, UpdatedAt: r.UpdatedAt, UpdatedBy: r.UpdatedBy,
		Deprecated: r.Deprecated, Active: r.Active, Frozen: r.Frozen,
	}
}

func fromWire(w wireResource) Resource {
	return Resource{
		ID: realmdomain.Label(w.ID), Rev: w.Rev, Types: w.Types,
		CreatedAt: w.CreatedAt, CreatedBy: w.CreatedBy, UpdatedAt: w.UpdatedAt, UpdatedBy: w.UpdatedBy,
		Deprecated: w.Deprecated, Active: w.Active, Frozen: w.Frozen,
	}
}

// putScript atomically enforces last-writer-wins: it only overwrites the
// stored resource when the incoming rev is strictly greater than what's
// stored. The issuer side index maps issuer -> label; the script records
// the realm's current issuer on the resource hash so it can DEL the old
// issuer key when the realm is deprecated or its issuer changes, keeping
// a deprecated or re-issued realm from resolving through a stale entry.
var putScript = redis.NewScript(`
local key = KEYS[1]
local newRev = tonumber(ARGV[1])
local payload = ARGV[2]
local issuer = ARGV[3]
local label = ARGV[4]
local issuerPrefix = ARGV[5]

local existing = redis.call('HGET', key, 'rev')
if existing and tonumber(existing) >= newRev then
    return 0
end

local oldIssuer = redis.call('HGET', key, 'issuer')
if oldIssuer and oldIssuer ~= '' and oldIssuer ~= issuer then
    redis.call('DEL', issuerPrefix .. oldIssuer)
end

redis.call('HSET', key, 'rev', newRev, 'payload', payload, 'issuer', issuer)
if issuer ~= '' then
    redis.call('SET', issuerPrefix .. issuer, label)
end
return 1
`)

// Put implements Index.
func (r *Redis) Put(ctx context.Context, res Resource) error {
	payload, err := json.Marshal(toWire(res))
	if err != nil {
		return fmt.Errorf("index: marshal resource: %w", err)
	}

	issuer := ""
	if res.Active != nil && !res.Deprecated {
		issuer = res.Active.Issuer
	}

	args := []interface{}{res.Rev, string(payload), issuer, string(res.ID), r.issuerPrefix + ":"}
	if _, err := putScript.Run(ctx, r.client, []string{r.keyFor(res.ID)}, args...).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// Get implements Index.
func (r *Redis) Get(ctx context.Context, id realmdomain.Label) (Resource, bool, error) {
	payload, err := r.client.HGet(ctx, r.keyFor(id), "payload").Result()
	if err == redis.Nil {
		return Resource{}, false, nil
	}
	if err != nil {
		return Resource{}, false, r.classify(err)
	}
	var w wireResource
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return Resource{}, false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return fromWire(w), true, nil
}

// List implements Index by scanning all resource keys under the prefix,
// sorted by createdAt ascending.
func (r *Redis) List(ctx context.Context) ([]Resource, error) {
	var out []Resource
	iter := r.client.Scan(ctx, 0, r.prefix+":resource:*", 0).Iterator()
	for iter.Next(ctx) {
		payload, err := r.client.HGet(ctx, iter.Val(), "payload").Result()
		if err != nil {
			continue
		}
		var w wireResource
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			continue
		}
		out = append(out, fromWire(w))
	}
	if err := iter.Err(); err != nil {
		return nil, r.classify(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ActiveRealmByIssuer implements token.RealmLookup via the issuer side
// index maintained by Put. The side index only yields a label; the live
// resource is re-read and re-checked so a realm that was deprecated or
// re-issued since the mapping was written never resolves.
func (r *Redis) ActiveRealmByIssuer(ctx context.Context, issuer string) (token.ActiveRealm, bool, error) {
	label, err := r.client.Get(ctx, r.issuerKeyFor(issuer)).Result()
	if err == redis.Nil {
		return token.ActiveRealm{}, false, nil
	}
	if err != nil {
		return token.ActiveRealm{}, false, r.classify(err)
	}

	res, ok, err := r.Get(ctx, realmdomain.Label(label))
	if err != nil {
		return token.ActiveRealm{}, false, err
	}
	if !ok || res.Deprecated || res.Active == nil || res.Active.Issuer != issuer {
		return token.ActiveRealm{}, false, nil
	}
	return token.ActiveRealm{ID: string(res.ID), Keys: res.Active.Keys}, true, nil
}

// ActiveLabelWithIssuer implements realmdomain.IssuerIndex.
func (r *Redis) ActiveLabelWithIssuer(ctx context.Context, issuer string, excluding realmdomain.Label) (realmdomain.Label, bool, error) {
	realm, found, err := r.ActiveRealmByIssuer(ctx, issuer)
	if err != nil || !found {
		return "", false, err
	}
	if realmdomain.Label(realm.ID) == excluding {
		return "", false, nil
	}
	return realmdomain.Label(realm.ID), true, nil
}

func (r *Redis) keyFor(id realmdomain.Label) string {
	return fmt.Sprintf("%s:resource:%s", r.prefix, id)
}

func (r *Redis) issuerKeyFor(issuer string) string {
	return fmt.Sprintf("%s:%s", r.issuerPrefix, issuer)
}

func (r *Redis) classify(err error) error {
	if err == context.DeadlineExceeded {
		return ErrOperationTimedOut
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// Close releases the underlying Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
