package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"agriprice/domain/model"
	apperrors "agriprice/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	input := model.PredictionInput{Year: 2024, Month: 3, City: "New Delhi", Variety: "Teja"}
	assert.Equal(t, "agriprice:predict:v7:2024:3:New+Delhi:Teja:Monthly:-:-:-", Key(7, input))

	input.Frequency = model.FrequencyMonthly
	assert.Equal(t, Key(7, model.PredictionInput{Year: 2024, Month: 3, City: "New Delhi", Variety: "Teja"}), Key(7, input),
		"empty frequency normalises to Monthly")

	input.Rainfall = model.Float(120.5)
	input.Temperature = model.Float(0)
	assert.Equal(t, "agriprice:predict:v7:2024:3:New+Delhi:Teja:Monthly:120.5:-:0", Key(7, input))

	assert.NotEqual(t, Key(7, input), Key(8, input))
	assert.NotEqual(t, Key(7, model.PredictionInput{City: "delhi"}), Key(7, model.PredictionInput{City: "Delhi"}))
	assert.NotEqual(t,
		Key(1, model.PredictionInput{City: "a:b", Variety: "c"}),
		Key(1, model.PredictionInput{City: "a", Variety: "b:c"}))
}

func TestNewClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := NewClient(ctx, Options{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, apperrors.CodeExternalService, apperrors.GetCode(err))
}

func TestPredictionCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	client, err := NewClient(ctx, Options{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cache := NewPredictionCache(client, time.Minute)
	input := model.PredictionInput{Year: 2031, Month: 11, City: "Nagpur", Variety: "Byadgi", Arrivals: model.Float(1800)}
	t.Cleanup(func() { client.Del(ctx, Key(99, input)) })

	_, found, err := cache.Get(ctx, 99, input)
	require.NoError(t, err)
	assert.False(t, found)

	want := model.PredictionResult{PredictedPrice: 25500, Confidence: 72, Model: "XGBoost"}
	require.NoError(t, cache.Set(ctx, 99, input, want))

	got, found, err := cache.Get(ctx, 99, input)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, *got)

	_, found, err = cache.Get(ctx, 100, input)
	require.NoError(t, err)
	assert.False(t, found)
}
