package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// OutputDir receives dealiased volume files; SaveDealiased gates writing.
	OutputDir     string
	SaveDealiased bool

	QC      QCThresholds
	Dealias DealiasConfig
}

// QCThresholds selects and bounds the masking filters. Filters default to
// disabled except the reflectivity noise filter; single-pol volumes do not
// carry the other moments.
type QCThresholds struct {
	ClampField string // empty disables range clamping
	ClampMin   float64
	ClampMax   float64

	ReflectivityEnabled bool
	ReflectivityMin     float64
	ReflectivityMax     float64

	ZdrEnabled bool
	ZdrMin     float64
	ZdrMax     float64

	RhoHVEnabled bool
	RhoHVMin     float64
	RhoHVMax     float64

	PhiDPEnabled bool
	PhiDPMin     float64
	PhiDPMax     float64

	NCPEnabled bool
	NCPMin     float64
	NCPMax     float64

	SNREnabled bool
	SNRMin     float64
	SNRMax     float64

	ClutterEnabled bool

	// FixChillSweeps overwrites sweep indices with the corrected CSU-CHILL
	// PPI schedule before anything else touches the volume.
	FixChillSweeps bool
}

// DealiasConfig configures the region-based unfolding service client.
type DealiasConfig struct {
	Enabled    bool
	ServiceURL string
	Timeout    time.Duration

	VelocityField   string
	NewFieldName    string
	NyquistVelocity float64 // 0 lets the service infer per-sweep values
	SkipAlongRay    int
	SkipBetweenRays int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	batchSize, err := parseIntEnv("BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	flushInterval, err := parseDurationEnv("BATCH_FLUSH_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	qc, err := loadQCThresholds()
	if err != nil {
		return nil, err
	}
	dealias, err := loadDealiasConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   envOrDefault("KAFKA_SOURCE_TOPIC", "radar-scan-jobs"),
		KafkaSinkTopic:     envOrDefault("KAFKA_SINK_TOPIC", "radar-qc-results"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "radar-qc"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		OutputDir:          envOrDefault("QC_OUTPUT_DIR", "."),
		SaveDealiased:      parseBoolEnv("QC_SAVE_DEALIASED", true),
		QC:                 qc,
		Dealias:            dealias,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("BATCH_SIZE must be positive")
	}
	if cfg.Dealias.Enabled && cfg.Dealias.ServiceURL == "" {
		return nil, errors.New("DEALIAS_ENABLED is true but DEALIAS_URL is not set")
	}

	return cfg, nil
}

func loadQCThresholds() (QCThresholds, error) {
	qc := QCThresholds{
		ClampField:          os.Getenv("QC_CLAMP_FIELD"),
		ReflectivityEnabled: parseBoolEnv("QC_Z_ENABLED", true),
		ZdrEnabled:          parseBoolEnv("QC_ZDR_ENABLED", false),
		RhoHVEnabled:        parseBoolEnv("QC_RHOHV_ENABLED", false),
		PhiDPEnabled:        parseBoolEnv("QC_PHIDP_ENABLED", false),
		NCPEnabled:          parseBoolEnv("QC_NCP_ENABLED", false),
		SNREnabled:          parseBoolEnv("QC_SNR_ENABLED", false),
		ClutterEnabled:      parseBoolEnv("QC_CLUTTER_ENABLED", false),
		FixChillSweeps:      parseBoolEnv("QC_FIX_CHILL_SWEEPS", false),
	}

	bounds := []struct {
		name     string
		min, max *float64
		defMin   float64
		defMax   float64
	}{
		{"QC_CLAMP", &qc.ClampMin, &qc.ClampMax, -32, 94},
		{"QC_Z", &qc.ReflectivityMin, &qc.ReflectivityMax, -10, 80},
		{"QC_ZDR", &qc.ZdrMin, &qc.ZdrMax, -5, 8},
		{"QC_RHOHV", &qc.RhoHVMin, &qc.RhoHVMax, 0.85, 1.05},
		{"QC_PHIDP", &qc.PhiDPMin, &qc.PhiDPMax, 0, 360},
		{"QC_NCP", &qc.NCPMin, &qc.NCPMax, 0.3, 1.1},
		{"QC_SNR", &qc.SNRMin, &qc.SNRMax, 3, 100},
	}
	for _, b := range bounds {
		var err error
		if *b.min, err = parseFloatEnv(b.name+"_MIN", b.defMin); err != nil {
			return QCThresholds{}, err
		}
		if *b.max, err = parseFloatEnv(b.name+"_MAX", b.defMax); err != nil {
			return QCThresholds{}, err
		}
		if *b.min >= *b.max {
			return QCThresholds{}, fmt.Errorf("%s_MIN must be below %s_MAX", b.name, b.name)
		}
	}

	return qc, nil
}

func loadDealiasConfig() (DealiasConfig, error) {
	timeout, err := parseDurationEnv("DEALIAS_TIMEOUT", 30*time.Second)
	if err != nil {
		return DealiasConfig{}, err
	}
	if timeout <= 0 {
		return DealiasConfig{}, errors.New("invalid DEALIAS_TIMEOUT")
	}
	nyquist, err := parseFloatEnv("DEALIAS_NYQUIST_VELOCITY", 0)
	if err != nil {
		return DealiasConfig{}, err
	}
	skipAlong, err := parseIntEnv("DEALIAS_SKIP_ALONG_RAY", 100)
	if err != nil {
		return DealiasConfig{}, err
	}
	skipBetween, err := parseIntEnv("DEALIAS_SKIP_BETWEEN_RAYS", 100)
	if err != nil {
		return DealiasConfig{}, err
	}

	url := os.Getenv("DEALIAS_URL")
	enabled := url != ""
	if v := os.Getenv("DEALIAS_ENABLED"); v != "" {
		enabled = v == "true"
	}

	return DealiasConfig{
		Enabled:         enabled,
		ServiceURL:      url,
		Timeout:         timeout,
		VelocityField:   envOrDefault("DEALIAS_VELOCITY_FIELD", "velocity"),
		NewFieldName:    envOrDefault("DEALIAS_NEW_FIELD", "dealiased_velocity"),
		NyquistVelocity: nyquist,
		SkipAlongRay:    skipAlong,
		SkipBetweenRays: skipBetween,
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseBoolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return def
}

func parseIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
