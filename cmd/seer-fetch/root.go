package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seermedical/seer-client-go/pkg/client"
	"github.com/seermedical/seer-client-go/pkg/config"
	"github.com/seermedical/seer-client-go/pkg/logging"
	"github.com/seermedical/seer-client-go/pkg/metrics"
)

var version = "dev"

// app holds the state shared by all subcommands.
type app struct {
	configPath  string
	logLevel    string
	apiURL      string
	threads     int
	metricsAddr string

	cfg     *config.Config
	logger  zerolog.Logger
	redis   *redis.Client
	metrics *http.Server
	bound   net.Addr
}

// execute runs the CLI with args. The metrics server and Redis client are
// released whether or not the command succeeds.
func execute(ctx context.Context, args []string, out, errOut io.Writer) (err error) {
	cmd, a := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	defer func() {
		err = errors.Join(err, a.shutdown())
	}()
	return cmd.ExecuteContext(ctx)
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "seer-fetch",
		Short: "Fetch studies, labels and channel data from the Seer platform",
		Long: `seer-fetch queries the Seer platform and writes the result as CSV to stdout.

Credentials come from ~/.seerpy (key files or a credentials file), the config
file, or SEER_EMAIL / SEER_PASSWORD / SEER_API_KEY_ID / SEER_API_KEY_PATH.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default $SEER_CONFIG or ~/.seerpy/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error, disabled")
	flags.StringVar(&a.apiURL, "api-url", "", "Override the API base URL")
	flags.IntVar(&a.threads, "threads", 0, "Concurrent requests (default: platform dependent)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	cmd.AddCommand(
		newStudiesCmd(a),
		newLabelGroupsCmd(a),
		newLabelsCmd(a),
		newTagsCmd(a),
		newOrganisationsCmd(a),
		newPatientsCmd(a),
		newCohortCmd(a),
		newChannelDataCmd(a),
	)
	return cmd, a
}

// setup loads the configuration, applies flag overrides and configures
// logging and the metrics endpoint.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logging.LogLevel(a.logLevel)
	}
	if flags.Changed("api-url") {
		cfg.APIURL = a.apiURL
	}
	if flags.Changed("threads") {
		cfg.Threads = a.threads
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cfg.Log.Output = cmd.ErrOrStderr()
	logging.Setup(cfg.Log)
	a.logger = logging.NewLogger("seer-fetch")
	a.cfg = cfg

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.MetricsAddr); err != nil {
			return err
		}
	}
	return nil
}

// connect creates an authenticated client.
func (a *app) connect(ctx context.Context) (*client.Client, error) {
	if a.redis == nil {
		a.redis = a.cfg.RedisClient()
		if a.redis != nil {
			if err := a.redis.Ping(ctx).Err(); err != nil {
				return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
			}
		}
	}
	return client.New(ctx, a.cfg.ClientConfig(a.redis))
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)

	a.bound = ln.Addr()
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	a.logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return nil
}

// shutdown releases the Redis client and stops the metrics server. It is
// safe to call more than once.
func (a *app) shutdown() error {
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.metrics == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.metrics.Shutdown(ctx)
	a.metrics = nil
	return err
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}
