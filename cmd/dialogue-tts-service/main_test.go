package main

import (
	"context"
	"testing"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/book-expert/dialogue-tts/internal/config"
	"github.com/book-expert/dialogue-tts/internal/effects"
)

func startJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	js, err := jetstream.New(natsConnection)
	require.NoError(t, err)

	return js
}

func TestOpenStores_CreatesBuckets(t *testing.T) {
	t.Parallel()

	js := startJetStream(t)
	ctx := context.Background()

	var cfg config.Config
	cfg.ApplyDefaults()

	buckets, err := openStores(ctx, js, cfg.NATS)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultScriptBucket, buckets.scripts.Bucket())
	assert.Equal(t, config.DefaultAudioBucket, buckets.audio.Bucket())
	assert.Equal(t, config.DefaultEffectsBucket, buckets.effects.Bucket())

	again, err := openStores(ctx, js, cfg.NATS)
	require.NoError(t, err, "reopening existing buckets should succeed")
	assert.Equal(t, buckets.audio.Bucket(), again.audio.Bucket())
}

func TestClipSource(t *testing.T) {
	t.Parallel()

	js := startJetStream(t)

	var cfg config.Config
	cfg.ApplyDefaults()
	cfg.Effects.Dir = "clips"

	buckets, err := openStores(context.Background(), js, cfg.NATS)
	require.NoError(t, err)

	assert.Equal(t, effects.FileSource{Dir: "clips"}, clipSource(&cfg, buckets))

	cfg.Effects.Source = config.EffectSourceStore
	assert.Equal(t, effects.StoreSource{Store: buckets.effects}, clipSource(&cfg, buckets))
}

// initMetrics replaces the global meter provider, so this test is not parallel.
func TestInitMetrics_InstallsSDKProvider(t *testing.T) {
	log, err := logger.New(t.TempDir(), "service-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	var cfg config.Config
	cfg.ApplyDefaults()

	met, stop, err := initMetrics(&cfg, log)
	require.NoError(t, err)
	require.NotNil(t, met)

	assert.IsType(t, &sdkmetric.MeterProvider{}, otel.GetMeterProvider())

	met.RecordRun(context.Background(), "ok", 0)
	assert.NotPanics(t, stop)
}
