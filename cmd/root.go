package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/airframesio/pgactivity-collector/cmd.Version=1.2.3"
	Version = "dev"

	cfgFile          string
	debug            bool
	logFormat        string
	connString       string
	pollInterval     string
	maxUptime        string
	statementTimeout int
	outputDir        string
	outputTemplate   string
	outputFormat     string
	compression      string
	compressionLevel int
	queriesFile      string
	queryName        string
	metricsAddr      string
	s3Endpoint       string
	s3Bucket         string
	s3AccessKey      string
	s3SecretKey      string
	s3Region         string
	s3PathTemplate   string
	catSummary       bool
	checkUpdates     bool

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D9FF"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00"))

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "pgactivity",
	Version: Version,
	Short:   "Record pg_stat_activity snapshots into a compressed file",
	Long: titleStyle.Render("pgactivity") + `

Polls pg_stat_activity on a fixed interval and appends every snapshot to one
compressed output file per run. Each block is flushed through the compressor,
so the file stays readable up to the last snapshot even after a crash.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Poll pg_stat_activity until max uptime or an interrupt",
	Long: `Poll pg_stat_activity until max uptime is exceeded or SIGINT/SIGTERM arrives.
A second interrupt exits immediately with code 6.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runCollect()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running collector",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runStatus()
	},
}

var catCmd = &cobra.Command{
	Use:   "cat FILE",
	Short: "Decompress a collector file to stdout",
	Long: `Decompress a collector file to stdout, picking the codec from the extension
(.zst, .lz4, .gz, or none). Files cut off after their last flushed snapshot are
printed up to that point and the truncation is reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if catSummary {
			return summarizeFile(args[0], os.Stdout)
		}
		return catFile(args[0], os.Stdout)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version, optionally checking for a newer release",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Println("pgactivity " + Version)
		if !checkUpdates {
			return nil
		}
		result, err := newVersionChecker().Check(cmd.Context(), Version)
		if err != nil {
			return err
		}
		if result.UpdateAvailable {
			fmt.Println(warnStyle.Render(formatUpdateMessage(result)))
		} else if result.LatestVersion != "" {
			fmt.Println(infoStyle.Render("Up to date"))
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pgactivity.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")

	flags := collectCmd.Flags()
	flags.StringVar(&connString, "conn-string", "", "PostgreSQL connection string, key=value or postgres:// URL (required)")
	flags.StringVar(&pollInterval, "poll-interval", "53", "seconds between snapshots")
	flags.StringVar(&maxUptime, "max-uptime", "3600", "seconds after which the run finishes its file and exits")
	flags.IntVar(&statementTimeout, "statement-timeout", int(defaultStatementTimeout/time.Millisecond), "server-side statement timeout in milliseconds")
	flags.StringVar(&outputDir, "output-dir", ".", "directory for output files")
	flags.StringVar(&outputTemplate, "output-template", defaultOutputTemplate, "output file name; {timestamp} is the run start in UTC")
	flags.StringVar(&outputFormat, "output-format", "text", "output format: text, jsonl, csv")
	flags.StringVar(&compression, "compression", "zstd", "compression type: zstd, lz4, gzip, none")
	flags.IntVar(&compressionLevel, "compression-level", 0, "compression level (zstd: 1-22, lz4/gzip: 1-9, 0: codec default)")
	flags.StringVar(&queriesFile, "queries-file", "", "goyesql file replacing the built-in queries")
	flags.StringVar(&queryName, "query-name", defaultQueryName, "name of the query to run from the queries file")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics, /live and /ready on this address (disabled when empty)")

	flags.StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")
	flags.StringVar(&s3Bucket, "s3-bucket", "", "upload the finished file to this bucket (disabled when empty)")
	flags.StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	flags.StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")
	flags.StringVar(&s3Region, "s3-region", regionAuto, "S3 region")
	flags.StringVar(&s3PathTemplate, "s3-path-template", "pgactivity/{YYYY}/{MM}/{DD}", "S3 key prefix with placeholders: {YYYY}, {MM}, {DD}, {HH}")

	versionCmd.Flags().BoolVar(&checkUpdates, "check", false, "look up the latest release on GitHub")
	catCmd.Flags().BoolVar(&catSummary, "summary", false, "print one line per snapshot instead of the content (jsonl files)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	_ = viper.BindPFlag("conn_string", flags.Lookup("conn-string"))
	_ = viper.BindPFlag("poll_interval_secs", flags.Lookup("poll-interval"))
	_ = viper.BindPFlag("max_uptime_secs", flags.Lookup("max-uptime"))
	_ = viper.BindPFlag("statement_timeout_ms", flags.Lookup("statement-timeout"))
	_ = viper.BindPFlag("output_dir", flags.Lookup("output-dir"))
	_ = viper.BindPFlag("output_template", flags.Lookup("output-template"))
	_ = viper.BindPFlag("output_format", flags.Lookup("output-format"))
	_ = viper.BindPFlag("compression", flags.Lookup("compression"))
	_ = viper.BindPFlag("compression_level", flags.Lookup("compression-level"))
	_ = viper.BindPFlag("queries_file", flags.Lookup("queries-file"))
	_ = viper.BindPFlag("query_name", flags.Lookup("query-name"))
	_ = viper.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	_ = viper.BindPFlag("s3.endpoint", flags.Lookup("s3-endpoint"))
	_ = viper.BindPFlag("s3.bucket", flags.Lookup("s3-bucket"))
	_ = viper.BindPFlag("s3.access_key", flags.Lookup("s3-access-key"))
	_ = viper.BindPFlag("s3.secret_key", flags.Lookup("s3-secret-key"))
	_ = viper.BindPFlag("s3.region", flags.Lookup("s3-region"))
	_ = viper.BindPFlag("s3.path_template", flags.Lookup("s3-path-template"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pgactivity")
	}

	// PSD_CONN_STRING, PSD_POLL_INTERVAL_SECS, PSD_S3_BUCKET, ...
	viper.SetEnvPrefix("PSD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && debug {
		if logger == nil {
			initLogger(debug, logFormat)
		}
		logger.Debug("using config file", "path", viper.ConfigFileUsed())
	}
}

// loadConfig assembles the collector configuration from flags, environment and config file
func loadConfig(v *viper.Viper) (*Config, error) {
	poll, err := ParseSeconds(v.GetString("poll_interval_secs"))
	if err != nil {
		return nil, fmt.Errorf("poll interval: %w", err)
	}
	uptime, err := ParseSeconds(v.GetString("max_uptime_secs"))
	if err != nil {
		return nil, fmt.Errorf("max uptime: %w", err)
	}

	return &Config{
		Debug:            v.GetBool("debug"),
		LogFormat:        v.GetString("log_format"),
		ConnString:       v.GetString("conn_string"),
		PollInterval:     poll,
		MaxUptime:        uptime,
		StatementTimeout: time.Duration(v.GetInt("statement_timeout_ms")) * time.Millisecond,
		OutputDir:        v.GetString("output_dir"),
		OutputTemplate:   v.GetString("output_template"),
		OutputFormat:     v.GetString("output_format"),
		Compression:      v.GetString("compression"),
		CompressionLevel: v.GetInt("compression_level"),
		QueriesFile:      v.GetString("queries_file"),
		QueryName:        v.GetString("query_name"),
		MetricsAddr:      v.GetString("metrics_addr"),
		S3: S3Config{
			Endpoint:     v.GetString("s3.endpoint"),
			Bucket:       v.GetString("s3.bucket"),
			AccessKey:    v.GetString("s3.access_key"),
			SecretKey:    v.GetString("s3.secret_key"),
			Region:       v.GetString("s3.region"),
			PathTemplate: v.GetString("s3.path_template"),
		},
	}, nil
}

func runCollect() error {
	config, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	initLogger(config.Debug, config.LogFormat)

	logger.Debug("validating configuration")
	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	query, err := loadQuery(config.QueriesFile, config.QueryName)
	if err != nil {
		return err
	}

	if err := WritePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() {
		_ = RemovePIDFile()
		_ = RemoveStatusFile()
	}()

	metrics := NewMetrics(config.PollInterval)
	if config.MetricsAddr != "" {
		server, err := StartMetricsServer(config.MetricsAddr, metrics, logger)
		if err != nil {
			return err
		}
		defer server.Close()
	}

	opts := []CollectorOption{WithMetrics(metrics), WithStatusFile()}
	if config.S3.Enabled() {
		archiver, err := NewArchiver(config.S3, logger)
		if err != nil {
			return err
		}
		opts = append(opts, WithUploader(archiver))
	}

	shutdown := NewShutdown(logger, os.Exit)
	shutdown.Arm()
	defer shutdown.Close()

	connect := sessionConnector(SessionConfig{
		ConnString:       config.ConnString,
		StatementTimeout: config.StatementTimeout,
		Query:            query,
		Logger:           logger,
	})

	logger.Info("pgactivity starting", "version", Version)
	return NewCollector(config, logger, connect, shutdown, opts...).Run(context.Background())
}

func runStatus() error {
	pid, err := ReadPIDFile()
	if errors.Is(err, os.ErrNotExist) {
		fmt.Println(warnStyle.Render("No collector is running"))
		return nil
	}
	if err != nil {
		return err
	}

	running := IsProcessRunning(pid)
	state := infoStyle.Render("running")
	if !running {
		state = warnStyle.Render("not running (stale PID file)")
	}
	fmt.Println(titleStyle.Render("pgactivity collector"))
	fmt.Printf("PID:           %d %s\n", pid, state)

	info, err := ReadStatus()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	fmt.Printf("Started:       %s (%s ago)\n", info.StartTime.UTC().Format(time.RFC3339), time.Since(info.StartTime).Round(time.Second))
	fmt.Printf("Output:        %s\n", info.OutputPath)
	fmt.Printf("Snapshots:     %d\n", info.Snapshots)
	fmt.Printf("Rows:          %d\n", info.Rows)
	fmt.Printf("Reconnects:    %d\n", info.Reconnects)
	if !info.LastSnapshot.IsZero() {
		fmt.Printf("Last snapshot: %s\n", info.LastSnapshot.UTC().Format(time.RFC3339))
	}
	return nil
}
