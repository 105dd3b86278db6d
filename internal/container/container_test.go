package container

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agriprice/internal"
	"agriprice/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "8080", AdminPort: "8081"},
		Synthesis: config.SynthesisConfig{
			StartYear:             2024,
			EndYear:               2024,
			SamplesPerCombination: 1,
			SamplingRate:          1,
			Seed:                  9,
		},
		Data: config.DataConfig{SnapshotToDB: true},
	}
}

func quietLogger() *internal.Logger {
	return internal.NewLoggerTo(&bytes.Buffer{}, internal.LogLevelError)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, quietLogger())
	assert.Error(t, err)
}

func TestInitWithSynthesizedData(t *testing.T) {
	c, err := New(testConfig(), quietLogger())
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	defer c.Shutdown(context.Background())

	assert.Equal(t, "synthetic", c.SourceOrigin)
	assert.Nil(t, c.DB)
	assert.Nil(t, c.Cache)
	assert.Nil(t, c.Scheduler)

	run, err := c.Training.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12*24*12, run.SampleCount)
	assert.Equal(t, uint64(1), c.Engine.Version())
}

func TestInitWithDatasetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observations.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"year,month,city,variety,rainfall,arrivals,temperature,price\n"+
			"2024,1,Delhi,Teja,20,3000,22,24500\n"+
			"2024,7,Delhi,Teja,180,1400,29,26500\n"), 0o644))

	cfg := testConfig()
	cfg.Data.DatasetFile = path
	cfg.Training.RetrainSchedule = "@daily"

	c, err := New(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))

	assert.Equal(t, "file", c.SourceOrigin)
	require.NotNil(t, c.Scheduler)
	assert.True(t, c.Scheduler.Next().After(time.Now()))

	run, err := c.Training.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.SampleCount)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, c.Shutdown(ctx))
}

func TestInitFromDatabaseNeedsRepository(t *testing.T) {
	cfg := testConfig()
	cfg.Data.LoadFromDBOnly = true

	c, err := New(cfg, quietLogger())
	require.NoError(t, err)
	assert.Error(t, c.Init(context.Background()))
}

func TestSynthesisConfigOverrides(t *testing.T) {
	got := SynthesisConfig(config.SynthesisConfig{StartYear: 2010, EndYear: 2012, SamplesPerCombination: 3, SamplingRate: 0.5, Seed: 4})
	assert.Equal(t, 2010, got.StartYear)
	assert.Equal(t, 2012, got.EndYear)
	assert.Equal(t, 3, got.SamplesPerCombination)
	assert.Equal(t, 0.5, got.SamplingRate)
	assert.Equal(t, int64(4), got.Seed)
	assert.Len(t, got.Cities, 24)
}
