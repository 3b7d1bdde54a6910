// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/z5labs/printq/backup"
	"github.com/z5labs/printq/config"
	"github.com/z5labs/printq/internal/logfile"
	"github.com/z5labs/printq/otel"
	"github.com/z5labs/printq/service"
)

const usage = `usage: printq <host> <user> <password> <queue> <home> [printer] [interval_ms]

  host         broker address, e.g. tcp://localhost:5672
  user         broker user
  password     broker password
  queue        queue or topic to consume print jobs from
  home         folder under which PrintService/ is created
  printer      print service name, empty selects none
  interval_ms  reconnect interval in milliseconds (default 5000)`

const (
	driverAMQP  = "amqp"
	driverKafka = "kafka"
)

// fileConfig mirrors the PRINTQ_* environment variables. Environment
// variables take precedence over the file. Options whose zero value is
// meaningful are read as strings so they can be told apart from unset.
type fileConfig struct {
	Broker struct {
		Driver string `yaml:"driver"`

		AMQP struct {
			Durable        string `yaml:"durable"`
			Prefetch       string `yaml:"prefetch"`
			Heartbeat      string `yaml:"heartbeat"`
			ConnectTimeout string `yaml:"connect_timeout"`
			ConnectionName string `yaml:"connection_name"`
		} `yaml:"amqp"`

		Kafka struct {
			GroupID        string `yaml:"group_id"`
			SessionTimeout string `yaml:"session_timeout"`
			FetchMaxBytes  string `yaml:"fetch_max_bytes"`
			TLS            bool   `yaml:"tls"`
			TLSCAFile      string `yaml:"tls_ca_file"`
		} `yaml:"kafka"`
	} `yaml:"broker"`

	Printer struct {
		Fallback bool `yaml:"fallback"`

		CUPS struct {
			Server   string `yaml:"server"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			TLS      bool   `yaml:"tls"`
		} `yaml:"cups"`
	} `yaml:"printer"`

	Backup struct {
		S3 struct {
			Endpoint  string `yaml:"endpoint"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
			Bucket    string `yaml:"bucket"`
			Secure    bool   `yaml:"secure"`
		} `yaml:"s3"`
	} `yaml:"backup"`

	Journal struct {
		DSN string `yaml:"dsn"`
	} `yaml:"journal"`

	Health struct {
		Addr string `yaml:"addr"`
	} `yaml:"health"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// AMQPConfig tunes the AMQP driver.
type AMQPConfig struct {
	Durable        bool
	Prefetch       int
	Heartbeat      time.Duration
	ConnectTimeout time.Duration
	ConnectionName string
}

// KafkaConfig tunes the Kafka driver.
type KafkaConfig struct {
	GroupID        string
	SessionTimeout time.Duration
	FetchMaxBytes  int32
	TLS            bool

	// TLSCAFile replaces the system roots when set. It implies TLS.
	TLSCAFile string
}

// CUPSConfig locates the CUPS server.
type CUPSConfig struct {
	Server   string
	User     string
	Password string
	TLS      bool
}

// Config is everything needed to start a print station.
type Config struct {
	Host     string
	User     string
	Password string
	Queue    string
	Layout   logfile.Layout
	Printer  string
	Interval time.Duration

	Driver   string
	AMQP     AMQPConfig
	Kafka    KafkaConfig
	Fallback bool
	CUPS     CUPSConfig

	// S3 is only used when S3.Bucket is set.
	S3 backup.BucketConfig

	JournalDSN string

	// HealthAddr serves the health checks and the journal when set.
	HealthAddr string
	LogLevel   slog.Level
}

func stringOf(env string, file config.Reader[fileConfig], field func(fileConfig) string) config.Reader[string] {
	return config.Or(config.Env(env), config.Field(file, field))
}

func boolOf(env string, file config.Reader[fileConfig], field func(fileConfig) bool) config.Reader[bool] {
	return config.Or(config.BoolFromString(config.Env(env)), config.Field(file, field))
}

func durationOf(env string, file config.Reader[fileConfig], field func(fileConfig) string) config.Reader[time.Duration] {
	return config.DurationFromString(stringOf(env, file, field))
}

// Load reads the positional startup parameters followed by the optional
// PRINTQ_* overrides.
func Load(ctx context.Context, args []string) (Config, error) {
	var cfg Config
	required := []struct {
		dst  *string
		name string
	}{
		{&cfg.Host, "host"},
		{&cfg.User, "user"},
		{&cfg.Password, "password"},
		{&cfg.Queue, "queue"},
	}
	for i, r := range required {
		v, err := config.Read(ctx, config.RequiredArg(args, i, r.name))
		if err != nil {
			return Config{}, err
		}
		*r.dst = v
	}

	home, err := config.Read(ctx, config.RequiredArg(args, 4, "home"))
	if err != nil {
		return Config{}, err
	}
	cfg.Layout = logfile.NewLayout(home)

	cfg.Printer, err = config.Read(ctx, config.Default("", config.Arg(args, 5)))
	if err != nil {
		return Config{}, err
	}

	cfg.Interval, err = config.Read(ctx, config.Default(service.DefaultInterval, config.MillisFromString(config.Arg(args, 6))))
	if err != nil {
		return Config{}, err
	}

	file := config.Cache(config.UnmarshalYAML[fileConfig](config.File(config.Env("PRINTQ_CONFIG_FILE"))))

	cfg.Driver, err = config.Read(ctx, config.Default(driverAMQP, stringOf("PRINTQ_BROKER_DRIVER", file, func(c fileConfig) string {
		return c.Broker.Driver
	})))
	if err != nil {
		return Config{}, err
	}
	cfg.Driver = strings.ToLower(cfg.Driver)
	if cfg.Driver != driverAMQP && cfg.Driver != driverKafka {
		return Config{}, fmt.Errorf("unknown broker driver: %s", cfg.Driver)
	}

	cfg.AMQP, err = loadAMQP(ctx, file)
	if err != nil {
		return Config{}, err
	}

	cfg.Kafka, err = loadKafka(ctx, file)
	if err != nil {
		return Config{}, err
	}

	cfg.Fallback, err = config.Read(ctx, config.Default(false, boolOf("PRINTQ_PRINTER_FALLBACK", file, func(c fileConfig) bool {
		return c.Printer.Fallback
	})))
	if err != nil {
		return Config{}, err
	}

	cfg.CUPS, err = loadCUPS(ctx, file)
	if err != nil {
		return Config{}, err
	}

	cfg.S3, err = loadBucket(ctx, file)
	if err != nil {
		return Config{}, err
	}

	cfg.JournalDSN, err = config.Read(ctx, config.Default(cfg.Layout.Journal(), stringOf("PRINTQ_JOURNAL_DSN", file, func(c fileConfig) string {
		return c.Journal.DSN
	})))
	if err != nil {
		return Config{}, err
	}

	cfg.HealthAddr, err = config.Read(ctx, config.Default("", stringOf("PRINTQ_HEALTH_ADDR", file, func(c fileConfig) string {
		return c.Health.Addr
	})))
	if err != nil {
		return Config{}, err
	}

	cfg.LogLevel, err = config.Read(ctx, config.Default(slog.LevelInfo, otel.LevelFromString(stringOf("PRINTQ_LOG_LEVEL", file, func(c fileConfig) string {
		return c.Log.Level
	}))))
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadAMQP(ctx context.Context, file config.Reader[fileConfig]) (AMQPConfig, error) {
	var (
		cfg AMQPConfig
		err error
	)
	cfg.Durable, err = config.Read(ctx, config.Default(true, config.BoolFromString(stringOf("PRINTQ_AMQP_DURABLE", file, func(c fileConfig) string {
		return c.Broker.AMQP.Durable
	}))))
	if err != nil {
		return AMQPConfig{}, err
	}

	prefetch := config.IntFromString(stringOf("PRINTQ_AMQP_PREFETCH", file, func(c fileConfig) string {
		return c.Broker.AMQP.Prefetch
	}))
	cfg.Prefetch, err = config.Read(ctx, config.Default(1, config.Map(prefetch, func(ctx context.Context, n int) (int, error) {
		if n < 0 {
			return 0, fmt.Errorf("amqp prefetch must not be negative: %d", n)
		}
		return n, nil
	})))
	if err != nil {
		return AMQPConfig{}, err
	}

	cfg.Heartbeat, err = config.Read(ctx, config.Default(10*time.Second, durationOf("PRINTQ_AMQP_HEARTBEAT", file, func(c fileConfig) string {
		return c.Broker.AMQP.Heartbeat
	})))
	if err != nil {
		return AMQPConfig{}, err
	}

	cfg.ConnectTimeout, err = config.Read(ctx, config.Default(30*time.Second, durationOf("PRINTQ_AMQP_CONNECT_TIMEOUT", file, func(c fileConfig) string {
		return c.Broker.AMQP.ConnectTimeout
	})))
	if err != nil {
		return AMQPConfig{}, err
	}

	cfg.ConnectionName, err = config.Read(ctx, config.Default("printq", stringOf("PRINTQ_AMQP_CONNECTION_NAME", file, func(c fileConfig) string {
		return c.Broker.AMQP.ConnectionName
	})))
	if err != nil {
		return AMQPConfig{}, err
	}
	return cfg, nil
}

func loadKafka(ctx context.Context, file config.Reader[fileConfig]) (KafkaConfig, error) {
	var (
		cfg KafkaConfig
		err error
	)
	cfg.GroupID, err = config.Read(ctx, config.Default("printq", stringOf("PRINTQ_KAFKA_GROUP_ID", file, func(c fileConfig) string {
		return c.Broker.Kafka.GroupID
	})))
	if err != nil {
		return KafkaConfig{}, err
	}

	cfg.SessionTimeout, err = config.Read(ctx, config.Default(45*time.Second, durationOf("PRINTQ_KAFKA_SESSION_TIMEOUT", file, func(c fileConfig) string {
		return c.Broker.Kafka.SessionTimeout
	})))
	if err != nil {
		return KafkaConfig{}, err
	}

	fetchMaxBytes := config.Int64FromString(stringOf("PRINTQ_KAFKA_FETCH_MAX_BYTES", file, func(c fileConfig) string {
		return c.Broker.Kafka.FetchMaxBytes
	}))
	cfg.FetchMaxBytes, err = config.Read(ctx, config.Default(int32(50*1024*1024), config.Map(fetchMaxBytes, func(ctx context.Context, n int64) (int32, error) {
		if n <= 0 || n > math.MaxInt32 {
			return 0, fmt.Errorf("kafka fetch max bytes out of range: %d", n)
		}
		return int32(n), nil
	})))
	if err != nil {
		return KafkaConfig{}, err
	}

	cfg.TLSCAFile, err = config.Read(ctx, config.Default("", stringOf("PRINTQ_KAFKA_TLS_CA_FILE", file, func(c fileConfig) string {
		return c.Broker.Kafka.TLSCAFile
	})))
	if err != nil {
		return KafkaConfig{}, err
	}

	cfg.TLS, err = config.Read(ctx, config.Default(cfg.TLSCAFile != "", boolOf("PRINTQ_KAFKA_TLS", file, func(c fileConfig) bool {
		return c.Broker.Kafka.TLS
	})))
	if err != nil {
		return KafkaConfig{}, err
	}
	return cfg, nil
}

func loadCUPS(ctx context.Context, file config.Reader[fileConfig]) (CUPSConfig, error) {
	var (
		cfg CUPSConfig
		err error
	)
	fields := []struct {
		dst   *string
		env   string
		field func(fileConfig) string
	}{
		{&cfg.Server, "PRINTQ_CUPS_SERVER", func(c fileConfig) string { return c.Printer.CUPS.Server }},
		{&cfg.User, "PRINTQ_CUPS_USER", func(c fileConfig) string { return c.Printer.CUPS.User }},
		{&cfg.Password, "PRINTQ_CUPS_PASSWORD", func(c fileConfig) string { return c.Printer.CUPS.Password }},
	}
	for _, f := range fields {
		*f.dst, err = config.Read(ctx, config.Default("", stringOf(f.env, file, f.field)))
		if err != nil {
			return CUPSConfig{}, err
		}
	}

	cfg.TLS, err = config.Read(ctx, config.Default(false, boolOf("PRINTQ_CUPS_TLS", file, func(c fileConfig) bool {
		return c.Printer.CUPS.TLS
	})))
	if err != nil {
		return CUPSConfig{}, err
	}
	return cfg, nil
}

func loadBucket(ctx context.Context, file config.Reader[fileConfig]) (backup.BucketConfig, error) {
	var (
		cfg backup.BucketConfig
		err error
	)
	fields := []struct {
		dst   *string
		env   string
		field func(fileConfig) string
	}{
		{&cfg.Endpoint, "PRINTQ_BACKUP_S3_ENDPOINT", func(c fileConfig) string { return c.Backup.S3.Endpoint }},
		{&cfg.AccessKey, "PRINTQ_BACKUP_S3_ACCESS_KEY", func(c fileConfig) string { return c.Backup.S3.AccessKey }},
		{&cfg.SecretKey, "PRINTQ_BACKUP_S3_SECRET_KEY", func(c fileConfig) string { return c.Backup.S3.SecretKey }},
		{&cfg.Bucket, "PRINTQ_BACKUP_S3_BUCKET", func(c fileConfig) string { return c.Backup.S3.Bucket }},
	}
	for _, f := range fields {
		*f.dst, err = config.Read(ctx, config.Default("", stringOf(f.env, file, f.field)))
		if err != nil {
			return backup.BucketConfig{}, err
		}
	}

	cfg.Secure, err = config.Read(ctx, config.Default(false, boolOf("PRINTQ_BACKUP_S3_SECURE", file, func(c fileConfig) bool {
		return c.Backup.S3.Secure
	})))
	if err != nil {
		return backup.BucketConfig{}, err
	}
	return cfg, nil
}
