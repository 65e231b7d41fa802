//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/radar-qc-service/internal/adapter/kafka"
	"github.com/couchcryptid/radar-qc-service/internal/adapter/volfile"
	"github.com/couchcryptid/radar-qc-service/internal/config"
	"github.com/couchcryptid/radar-qc-service/internal/domain"
	"github.com/couchcryptid/radar-qc-service/internal/observability"
	"github.com/couchcryptid/radar-qc-service/internal/pipeline"
)

const (
	testSourceTopic = "test-scan-jobs"
	testSinkTopic   = "test-qc-results"
)

// resultMessage holds a deserialized message read from the sink topic.
type resultMessage struct {
	Result  domain.QCResult
	Key     string
	Headers map[string]string
}

// readResult reads a single message from the sink consumer and deserializes it.
func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var result domain.QCResult
	require.NoError(t, json.Unmarshal(msg.Value, &result), "unmarshal sink message")

	return resultMessage{
		Result:  result,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func testConfig(broker string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("test-qc-%d", time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
		SaveDealiased:      false,
		QC: config.QCThresholds{
			ReflectivityEnabled: true,
			ReflectivityMin:     -10,
			ReflectivityMax:     80,
		},
	}
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a scan job through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker)
	volPath := writeFixtureVolume(ctx, t, t.TempDir(), "scan")

	payload, err := json.Marshal(domain.ScanJob{ID: "job-1", VolumePath: volPath})
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("job-1"),
		Value: payload,
	}))

	// Extract via kafka.Reader.
	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawJob
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("job-1"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")

	require.NoError(t, raw.Commit(ctx))

	// Transform the scan job into a QC result.
	store := volfile.NewStore()
	transformer := pipeline.NewQCTransformer(store, store, nil, cfg, discardLogger(), observability.NewMetricsForTesting())
	result, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	// Load via kafka.Writer.
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.LoadBatch(ctx, []domain.QCResult{result}))

	// Read from the sink topic and verify headers + value.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	rm := readResult(ctx, t, consumer)
	assert.Equal(t, "job-1", rm.Key)
	assert.Equal(t, "KTEST", rm.Headers["instrument"])
	_, err = time.Parse(time.RFC3339, rm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	assert.Equal(t, "job-1", rm.Result.JobID)
	assert.Equal(t, volPath, rm.Result.InputPath)
	assert.Equal(t, 2, rm.Result.Rays)
	assert.Equal(t, 3, rm.Result.Gates)
	assert.Equal(t, 1, rm.Result.Sweeps)
	// The fixture's 95 dBZ gate is the only one outside the noise bounds.
	assert.Equal(t, 1, rm.Result.GatesMasked[domain.StepReflectivityNoise])
}

// TestPipelineEndToEnd wires the full pipeline (Reader → QCTransformer → Writer)
// with real Kafka and verifies every scan job comes out quality-controlled.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker)
	dir := t.TempDir()

	const jobCount = 5
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, jobCount)
	for i := 0; i < jobCount; i++ {
		volPath := writeFixtureVolume(ctx, t, dir, fmt.Sprintf("scan-%d", i))
		payload, err := json.Marshal(domain.ScanJob{VolumePath: volPath})
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(fmt.Sprintf("job-%d", i)),
			Value: payload,
		})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	// Wire up the pipeline.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	store := volfile.NewStore()
	transformer := pipeline.NewQCTransformer(store, store, nil, cfg, discardLogger(), observability.NewMetricsForTesting())

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, transformer, writer, discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := make([]resultMessage, 0, jobCount)
	for len(received) < jobCount {
		received = append(received, readResult(ctx, t, consumer))
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	require.Len(t, received, jobCount)
	seen := map[string]bool{}
	for _, rm := range received {
		seen[rm.Result.JobID] = true

		assert.Equal(t, "KTEST", rm.Result.Instrument)
		assert.Equal(t, []string{domain.StepReflectivityNoise}, rm.Result.StepsApplied)
		assert.Equal(t, 1, rm.Result.GatesMasked[domain.StepReflectivityNoise])
		assert.False(t, rm.Result.DealiasApplied)
		assert.False(t, rm.Result.ProcessedAt.IsZero(), "missing processed_at")
	}
	// Jobs without an explicit id take the message key.
	for i := 0; i < jobCount; i++ {
		assert.True(t, seen[fmt.Sprintf("job-%d", i)], "missing result for job-%d", i)
	}
}

// TestPipelineTransformError verifies that an invalid message (poison pill) is
// skipped and the pipeline continues processing valid scan jobs.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker)
	volPath := writeFixtureVolume(ctx, t, t.TempDir(), "scan")

	validPayload, err := json.Marshal(domain.ScanJob{ID: "good", VolumePath: volPath})
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: validPayload},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	store := volfile.NewStore()
	transformer := pipeline.NewQCTransformer(store, store, nil, cfg, discardLogger(), observability.NewMetricsForTesting())

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, transformer, writer, discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	rm := readResult(ctx, t, consumer)
	assert.Equal(t, "good", rm.Result.JobID)

	// Verify no second message arrives (the poison pill was skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
