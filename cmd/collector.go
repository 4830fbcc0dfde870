package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/airframesio/pgactivity-collector/cmd/compressors"
	"github.com/airframesio/pgactivity-collector/cmd/formatters"
)

// Waiter blocks between polls and reports whether the loop should stop
type Waiter interface {
	Wait(timeout time.Duration) bool
}

// Uploader ships a finalized output file
type Uploader interface {
	Upload(ctx context.Context, path string, key string) error
}

// Collector runs the poll loop: fetch, append, flush, wait
type Collector struct {
	config   *Config
	logger   *slog.Logger
	connect  ConnectFunc
	shutdown Waiter
	renderer *formatters.Renderer
	metrics  *Metrics
	uploader Uploader
	status   bool
	now      func() time.Time

	statusInfo StatusInfo
}

// CollectorOption customizes a Collector
type CollectorOption func(*Collector)

// WithMetrics records snapshots in m
func WithMetrics(m *Metrics) CollectorOption {
	return func(c *Collector) { c.metrics = m }
}

// WithUploader uploads the output file after a clean finish
func WithUploader(u Uploader) CollectorOption {
	return func(c *Collector) { c.uploader = u }
}

// WithStatusFile keeps ~/.pgactivity/status.json current
func WithStatusFile() CollectorOption {
	return func(c *Collector) { c.status = true }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a collector. connect is called once at start and once per reconnect.
func NewCollector(config *Config, logger *slog.Logger, connect ConnectFunc, shutdown Waiter, opts ...CollectorOption) *Collector {
	c := &Collector{
		config:   config,
		logger:   logger,
		connect:  connect,
		shutdown: shutdown,
		renderer: formatters.NewRenderer(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(config.PollInterval)
	}
	return c
}

// Run collects until max uptime is exceeded, a shutdown is requested, or an error occurs.
// The output file is finalized on every path once it has been created.
func (c *Collector) Run(ctx context.Context) error {
	formatter, err := formatters.GetFormatter(c.config.OutputFormat, c.renderer)
	if err != nil {
		return err
	}
	compressor, err := compressors.GetCompressor(c.config.Compression)
	if err != nil {
		return err
	}

	src, err := c.connect(ctx)
	if err != nil {
		return err
	}

	start := c.now()
	filename := GenerateFilename(c.config.OutputTemplate, start, formatter.Extension(), compressor.Extension())
	path := filepath.Join(c.config.OutputDir, filename)

	out, err := OpenOutput(path, formatter, compressor, c.config.CompressionLevel)
	if err != nil {
		src.Close()
		return err
	}
	c.logger.Info("collecting", "output", path, "poll_interval", c.config.PollInterval, "max_uptime", c.config.MaxUptime)

	c.statusInfo = StatusInfo{PID: os.Getpid(), StartTime: start, OutputPath: path}
	c.writeStatus()

	runErr := c.loop(ctx, &src, out, start)

	src.Close()
	finalizeErr := out.Close()
	if runErr != nil {
		if finalizeErr != nil {
			c.logger.Error("finalizing output failed", "error", finalizeErr)
		}
		return runErr
	}
	if finalizeErr != nil {
		return finalizeErr
	}

	if c.uploader != nil {
		key := ObjectKey(c.config.S3.PathTemplate, start, filename)
		if err := c.uploader.Upload(ctx, path, key); err != nil {
			c.logger.Error("upload failed, keeping local file", "path", path, "error", err)
			return err
		}
	}

	c.logger.Info("clean exit", "output", path, "snapshots", c.statusInfo.Snapshots)
	return nil
}

func (c *Collector) loop(ctx context.Context, src *ActivitySource, out *Output, start time.Time) error {
	for {
		snap, err := c.fetch(ctx, src)
		if err != nil {
			return err
		}

		before := out.BytesWritten()
		if err := out.WriteSnapshot(snap); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
		c.observe(snap, out.BytesWritten()-before)

		if elapsed := c.now().Sub(start); elapsed > c.config.MaxUptime {
			c.logger.Info("max uptime reached", "elapsed", elapsed.Round(time.Second), "max_uptime", c.config.MaxUptime)
			return nil
		}

		if c.shutdown.Wait(c.config.PollInterval) {
			return nil
		}
	}
}

// fetch runs one query with a single reconnect on failure. Rendering errors are never retried.
func (c *Collector) fetch(ctx context.Context, src *ActivitySource) (*formatters.Snapshot, error) {
	snap, err := (*src).Fetch(ctx)
	if err == nil {
		return snap, nil
	}
	if formatters.IsRenderError(err) {
		return nil, err
	}

	c.metrics.FetchFailed()
	c.logger.Warn("retrying after fetch error", "error", err)
	(*src).Close()

	next, err := c.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconnecting after fetch error: %w", err)
	}
	*src = next
	c.metrics.Reconnected()
	c.statusInfo.Reconnects++

	snap, err = next.Fetch(ctx)
	if err != nil {
		if formatters.IsRenderError(err) {
			return nil, err
		}
		c.metrics.FetchFailed()
		return nil, fmt.Errorf("fetch after reconnection: %w", err)
	}
	return snap, nil
}

func (c *Collector) observe(snap *formatters.Snapshot, written int64) {
	at := c.now()
	c.metrics.ObserveSnapshot(len(snap.Rows), written, at)

	c.statusInfo.Snapshots++
	c.statusInfo.Rows += int64(len(snap.Rows))
	c.statusInfo.LastSnapshot = at
	c.writeStatus()

	c.logger.Debug("snapshot written", "rows", len(snap.Rows), "bytes", written)
}

func (c *Collector) writeStatus() {
	if !c.status {
		return
	}
	info := c.statusInfo
	if err := WriteStatus(&info); err != nil {
		c.logger.Debug("writing status file failed", "error", err)
	}
}
