package limlog

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/distlimit/limlog/internal/codec"
)

const (
	// DefaultLogSize is the default per-segment usable byte capacity of a
	// `.limlog` data file: 4 GiB.
	DefaultLogSize uint64 = 1 << 32
	// DefaultIndexSize is the default per-segment usable byte capacity of
	// an `.idx` sidecar file: 16 MiB.
	DefaultIndexSize uint64 = 1 << 24
	// DefaultChannelSize is the default depth of the writer-to-appender
	// FIFO.
	DefaultChannelSize = 16
)

// Config holds the tuning knobs a Topic is built with.
type Config struct {
	Directory   string
	LogSize     uint64
	IndexSize   uint64
	ChannelSize int
	Logger      *zap.SugaredLogger
	Registerer  prometheus.Registerer
}

func defaultConfig() Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	logger, _ := zap.NewProduction()
	return Config{
		Directory:   wd,
		LogSize:     DefaultLogSize,
		IndexSize:   DefaultIndexSize,
		ChannelSize: DefaultChannelSize,
		Logger:      logger.Sugar(),
		Registerer:  prometheus.DefaultRegisterer,
	}
}

// Option configures a Topic at construction time.
type Option func(*Config) error

// WithDirectory sets the topic's backing directory. Default: the current
// working directory.
func WithDirectory(dir string) Option {
	return func(c *Config) error {
		c.Directory = dir
		return nil
	}
}

// WithLogSize sets the usable byte capacity of each `.limlog` segment.
// Default: 4 GiB.
func WithLogSize(n uint64) Option {
	return func(c *Config) error {
		if n == 0 {
			return fmt.Errorf("limlog: log_size must be > 0")
		}
		c.LogSize = n
		return nil
	}
}

// WithIndexSize sets the usable byte capacity of each `.idx` sidecar.
// Default: 16 MiB.
func WithIndexSize(n uint64) Option {
	return func(c *Config) error {
		if n < codec.IndexEntrySize {
			return fmt.Errorf("limlog: index_size must hold at least one entry (%d bytes)", codec.IndexEntrySize)
		}
		c.IndexSize = n
		return nil
	}
}

// WithChannelSize sets the depth of the writer-to-appender FIFO. Default:
// 16.
func WithChannelSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("limlog: channel_size must be > 0")
		}
		c.ChannelSize = n
		return nil
	}
}

// WithLogger overrides the structured logger. Default: a production zap
// logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

// WithRegisterer overrides the Prometheus registerer metrics are
// registered against. Default: prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *Config) error {
		c.Registerer = r
		return nil
	}
}

// maxBodySize returns the largest record body that can ever be written
// given cfg.LogSize — a body larger than this can never fit in a freshly
// rolled segment, so Write must reject it up front rather than let the
// appender loop forever trying to roll over (Open Question 3).
func (c Config) maxBodySize() uint64 {
	if c.LogSize < uint64(codec.MinLogSize) {
		return 0
	}
	return c.LogSize - uint64(codec.MinLogSize)
}
