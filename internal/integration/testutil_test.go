//go:build integration

package integration_test

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/radar-qc-service/internal/adapter/volfile"
	"github.com/couchcryptid/radar-qc-service/internal/domain"
)

// startKafka runs a single-broker Kafka container and returns its bootstrap
// address. The container is terminated when the test finishes.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("radar-qc-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic on the broker.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial kafka broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "resolve controller")

	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafkago.Dial("tcp", addr)
	require.NoError(t, err, "dial controller")
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// writeFixtureVolume writes a small single-sweep volume to dir and returns its
// path. Gate 0 of the reflectivity field sits above the default noise cutoff.
func writeFixtureVolume(ctx context.Context, t *testing.T, dir, name string) string {
	t.Helper()

	vol := domain.NewVolume(2, 3)
	vol.SweepStartRay = []int{0}
	vol.SweepEndRay = []int{1}
	vol.NyquistVelocity = []float64{26.3}
	vol.Meta.InstrumentName = "KTEST"
	require.NoError(t, vol.AddField(domain.FieldReflectivity, &domain.Field{
		Data:      []float64{95, 40, 30, 20, 10, 5},
		Units:     "dBZ",
		FillValue: domain.DefaultFillValue,
	}))
	require.NoError(t, vol.AddField(domain.FieldVelocity, &domain.Field{
		Data:      []float64{1, 2, 3, 4, 5, 6},
		Units:     "m/s",
		FillValue: domain.DefaultFillValue,
	}))

	path := filepath.Join(dir, name+volfile.Ext)
	require.NoError(t, volfile.NewStore().WriteVolume(ctx, path, vol))
	return path
}
