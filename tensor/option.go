package tensor

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ashbeekim/Hub/chunk"
	"github.com/ashbeekim/Hub/dtype"
)

const (
	// DefaultMaxChunkSize bounds a chunk's uncompressed payload.
	DefaultMaxChunkSize = 16 << 20

	defaultCacheSize = 32
	maxMetaSize      = 1 << 20
)

type engineConfig struct {
	dtype        dtype.T
	maxChunkSize int
	compression  chunk.CompressionAlgo
	cacheSize    int
	logger       *zap.Logger
	registry     prometheus.Registerer
}

func defaultConfig() engineConfig {
	return engineConfig{
		dtype:        dtype.Unknown,
		maxChunkSize: DefaultMaxChunkSize,
		compression:  chunk.CompressionNone,
		cacheSize:    defaultCacheSize,
		logger:       zap.NewNop(),
	}
}

// Option configures an Engine.
type Option func(*engineConfig) error

// WithDtype fixes the tensor's dtype at creation time. Without it, the dtype
// is inferred from the first appended sample; empty samples cannot be
// created until then.
func WithDtype(dt dtype.T) Option {
	return func(c *engineConfig) error {
		if !dt.Valid() {
			return errors.Errorf("invalid dtype %v", dt)
		}
		c.dtype = dt
		return nil
	}
}

// WithMaxChunkSize sets the chunk capacity in uncompressed payload bytes.
func WithMaxChunkSize(n int) Option {
	return func(c *engineConfig) error {
		if n <= 0 {
			return errors.Errorf("max chunk size should be positive: %d", n)
		}
		c.maxChunkSize = n
		return nil
	}
}

// WithCompression sets the compression scheme applied to chunk payloads.
func WithCompression(algo chunk.CompressionAlgo) Option {
	return func(c *engineConfig) error {
		c.compression = algo
		return nil
	}
}

// WithCacheSize sets the number of decoded chunks kept in memory.
func WithCacheSize(n int) Option {
	return func(c *engineConfig) error {
		if n <= 0 {
			return errors.Errorf("cache size should be positive: %d", n)
		}
		c.cacheSize = n
		return nil
	}
}

// WithLogger sets the engine's logger. The default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) error {
		c.logger = l
		return nil
	}
}

// WithMetricsRegistry registers the engine's metrics with reg.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(c *engineConfig) error {
		c.registry = reg
		return nil
	}
}
