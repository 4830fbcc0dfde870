package cmd

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/airframesio/pgactivity-collector/cmd/compressors"
	"github.com/airframesio/pgactivity-collector/cmd/formatters"
)

// Static errors for configuration validation
var (
	ErrConnStringRequired      = errors.New("PSD_CONN_STRING required, e.g.: host=localhost user=postgres sslmode=require")
	ErrSecondsInvalid          = errors.New("seconds value must be a number")
	ErrSecondsOutOfRange       = errors.New("seconds values must roughly be between 1ns and 136 years")
	ErrStatementTimeoutInvalid = errors.New("statement timeout must be > 0")
	ErrOutputDirRequired       = errors.New("output directory is required")
	ErrOutputTemplateInvalid   = errors.New("output template must contain {timestamp} and may not contain path separators")
	ErrOutputFormatInvalid     = errors.New("output format must be one of: text, jsonl, csv")
	ErrCompressionInvalid      = errors.New("compression must be one of: zstd, lz4, gzip, none")
	ErrCompressionLevelInvalid = errors.New("compression level must be between 1 and 22 (zstd), 1-9 (lz4/gzip), or 0 for the default")
	ErrQueryNameInvalid        = errors.New("query name is invalid: must contain only letters, numbers, dashes, and underscores")
	ErrS3EndpointRequired      = errors.New("S3 endpoint is required when an S3 bucket is set")
	ErrS3AccessKeyRequired     = errors.New("S3 access key is required when an S3 bucket is set")
	ErrS3SecretKeyRequired     = errors.New("S3 secret key is required when an S3 bucket is set")
	ErrS3RegionInvalid         = errors.New("S3 region contains invalid characters or is too long")
	ErrLogFormatInvalid        = errors.New("log format must be one of: text, logfmt, json")
)

const (
	regionAuto = "auto"

	// seconds values are bounded so they fit a time.Duration
	minSeconds = 1e-9
	maxSeconds = 1 << 32

	defaultPollInterval     = 53 * time.Second
	defaultMaxUptime        = time.Hour
	defaultStatementTimeout = 5 * time.Second
	defaultOutputTemplate   = "stat-activity-{timestamp}"
	defaultQueryName        = "stat-activity"
)

type Config struct {
	Debug            bool
	LogFormat        string
	ConnString       string
	PollInterval     time.Duration
	MaxUptime        time.Duration
	StatementTimeout time.Duration
	OutputDir        string
	OutputTemplate   string
	OutputFormat     string
	Compression      string
	CompressionLevel int // 0 selects the codec default
	QueriesFile      string
	QueryName        string
	MetricsAddr      string
	S3               S3Config
}

// S3Config describes where finished files are uploaded. An empty bucket disables upload.
type S3Config struct {
	Endpoint     string
	Bucket       string
	AccessKey    string
	SecretKey    string
	Region       string
	PathTemplate string
}

// Enabled reports whether an upload target is configured
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// ParseSeconds interprets a fractional number of seconds as a duration
func ParseSeconds(secs string) (time.Duration, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(secs), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing %q as float", ErrSecondsInvalid, secs)
	}

	if math.IsNaN(v) || v < minSeconds || v > maxSeconds {
		return 0, fmt.Errorf("%w, got %s", ErrSecondsOutOfRange, secs)
	}

	return time.Duration(math.Round(v * float64(time.Second))), nil
}

// validIdentifier matches goyesql query names
var validIdentifier = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validRegion matches reasonable S3 region names
var validRegion = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// isValidRegion validates that an S3 region is reasonable
func isValidRegion(region string) bool {
	if region == "" || len(region) > 50 {
		return false
	}
	return validRegion.MatchString(region)
}

// isValidOutputTemplate validates that a file name template can produce a unique, flat name
func isValidOutputTemplate(template string) bool {
	if !strings.Contains(template, "{timestamp}") {
		return false
	}
	return !strings.ContainsAny(template, `/\`)
}

// isValidOutputFormat validates the output format
func isValidOutputFormat(format string) bool {
	validFormats := map[string]bool{
		formatters.FormatText:  true,
		formatters.FormatJSONL: true,
		formatters.FormatCSV:   true,
	}
	return validFormats[format]
}

// isValidLogFormat validates the log format
func isValidLogFormat(format string) bool {
	switch format {
	case "", "text", "logfmt", "json":
		return true
	default:
		return false
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ConnString) == "" {
		return ErrConnStringRequired
	}

	if !isValidLogFormat(c.LogFormat) {
		return fmt.Errorf("%w: '%s'", ErrLogFormatInvalid, c.LogFormat)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval: %w", ErrSecondsOutOfRange)
	}
	if c.MaxUptime <= 0 {
		return fmt.Errorf("max uptime: %w", ErrSecondsOutOfRange)
	}

	if c.StatementTimeout <= 0 {
		return fmt.Errorf("%w, got %s", ErrStatementTimeoutInvalid, c.StatementTimeout)
	}

	if c.OutputDir == "" {
		return ErrOutputDirRequired
	}
	if !isValidOutputTemplate(c.OutputTemplate) {
		return fmt.Errorf("%w: '%s'", ErrOutputTemplateInvalid, c.OutputTemplate)
	}

	if !isValidOutputFormat(c.OutputFormat) {
		return fmt.Errorf("%w: '%s'", ErrOutputFormatInvalid, c.OutputFormat)
	}

	compressor, err := compressors.GetCompressor(c.Compression)
	if err != nil {
		return fmt.Errorf("%w: '%s'", ErrCompressionInvalid, c.Compression)
	}
	if !compressor.ValidLevel(c.CompressionLevel) {
		return fmt.Errorf("%w for compression %s: got %d", ErrCompressionLevelInvalid, c.Compression, c.CompressionLevel)
	}

	if !validIdentifier.MatchString(c.QueryName) {
		return fmt.Errorf("%w: '%s'", ErrQueryNameInvalid, c.QueryName)
	}

	if c.S3.Enabled() {
		if c.S3.Endpoint == "" {
			return ErrS3EndpointRequired
		}
		if c.S3.AccessKey == "" {
			return ErrS3AccessKeyRequired
		}
		if c.S3.SecretKey == "" {
			return ErrS3SecretKeyRequired
		}
		if c.S3.Region != "" && c.S3.Region != regionAuto && !isValidRegion(c.S3.Region) {
			return fmt.Errorf("%w: %s", ErrS3RegionInvalid, c.S3.Region)
		}
	}

	return nil
}
