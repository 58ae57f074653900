package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/songmatch/songmatch/internal/pairing"
	"github.com/songmatch/songmatch/internal/server"
	"github.com/songmatch/songmatch/internal/services"
	"github.com/songmatch/songmatch/internal/shared"
	"github.com/songmatch/songmatch/internal/store"
	"github.com/songmatch/songmatch/internal/web"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
	store  store.Store // overrides the Redis store when non-nil
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
	Store  store.Store
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
		store:  opts.Store,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the config file at path, falling back to the current
// config when it is absent or unreadable.
func (r *Runner) loadConfig(path string) {
	if _, err := os.Stat(path); err != nil {
		r.logger.Warn("config file not found, using defaults", "path", path)
		return
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		return
	}
	r.config = config
}

// openStore builds the session store: Redis by default, in-memory when the
// --memory flag asks for a credential-less local run.
func (r *Runner) openStore(ctx context.Context, inMemory bool) (store.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	if inMemory {
		r.logger.Warn("using in-memory session store; sessions do not survive restarts")
		return store.NewMemory(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     r.config.Redis.Addr,
		Password: r.config.Redis.Password,
		DB:       r.config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", r.config.Redis.Addr, err)
	}
	return store.NewRedis(client), nil
}

// Serve runs the pairing web service until the process is signalled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd.String("config"))
	if err := r.config.Validate(); err != nil {
		return err
	}

	st, err := r.openStore(ctx, cmd.Bool("memory"))
	if err != nil {
		return err
	}

	spotify, err := services.NewSpotifyService(map[string]string{
		"client_id":    r.config.Credentials.Spotify.ClientID,
		"redirect_uri": r.config.Credentials.Spotify.RedirectURI,
		"scope":        r.config.Credentials.Spotify.Scope,
	})
	if err != nil {
		return err
	}

	coordinator := pairing.NewCoordinator(st, spotify, r.config.Web.BaseURL, r.logger)

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	server.NewPairingHandler(coordinator, r.logger).Register(router)
	router.Handler(web.Index{})

	port := r.config.Server.Port
	if p := cmd.Int("port"); p != 0 {
		port = int(p)
	}
	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	r.logger.Info("listening", "addr", addr, "base_url", r.config.Web.BaseURL)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		r.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Setup materializes the example configuration file for editing.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("config file already exists", "path", configPath)
		return nil
	}

	if err := shared.CreateConfigFile(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	r.logger.Info("config file created", "path", configPath)
	r.writePlain("Edit %s and set credentials.spotify.client_id before serving.\n", configPath)
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
