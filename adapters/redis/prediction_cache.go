package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agriprice/domain/model"
	apperrors "agriprice/internal/errors"
	"agriprice/ports"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every cache entry
const KeyPrefix = "agriprice:predict"

// Options configure the connection and entry lifetime
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// predictionCache implements ports.PredictionCache on Redis string keys
type predictionCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewClient connects to Redis and verifies the connection with PING
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, apperrors.Wrapf(apperrors.ExternalServiceError("redis", err), "failed to connect to redis at %s", opts.Addr)
	}
	return client, nil
}

// NewPredictionCache wraps a client. A zero ttl stores entries without
// expiry; they still become unreachable once the engine version moves on.
func NewPredictionCache(client redis.UniversalClient, ttl time.Duration) ports.PredictionCache {
	return &predictionCache{client: client, ttl: ttl}
}

// Get returns the cached result and whether it was found
func (c *predictionCache) Get(ctx context.Context, version uint64, input model.PredictionInput) (*model.PredictionResult, bool, error) {
	data, err := c.client.Get(ctx, Key(version, input)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached prediction: %w", err)
	}

	var result model.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached prediction: %w", err)
	}
	return &result, true, nil
}

// Set stores a result under the versioned key
func (c *predictionCache) Set(ctx context.Context, version uint64, input model.PredictionInput, result model.PredictionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}
	if err := c.client.Set(ctx, Key(version, input), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache prediction: %w", err)
	}
	return nil
}

// Key builds the cache key for an input at an engine version. Names are
// escaped and missing optional readings are encoded as "-".
func Key(version uint64, input model.PredictionInput) string {
	freq := input.Frequency
	if freq == "" {
		freq = model.FrequencyMonthly
	}
	parts := []string{
		KeyPrefix,
		"v" + strconv.FormatUint(version, 10),
		strconv.Itoa(input.Year),
		strconv.Itoa(input.Month),
		url.QueryEscape(input.City),
		url.QueryEscape(input.Variety),
		string(freq),
		optional(input.Rainfall),
		optional(input.Arrivals),
		optional(input.Temperature),
	}
	return strings.Join(parts, ":")
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
