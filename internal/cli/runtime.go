package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/reactsync/internal/bsky"
	"github.com/roach88/reactsync/internal/config"
	"github.com/roach88/reactsync/internal/progress"
	"github.com/roach88/reactsync/internal/ratelimit"
	"github.com/roach88/reactsync/internal/session"
	"github.com/roach88/reactsync/internal/store"
)

// runtime owns the resources a command opens. Stores are shared by path so
// equal storage paths use one connection.
type runtime struct {
	opts   *RootOptions
	cfg    *config.Config
	logger *slog.Logger

	stores map[string]*store.Store
	redis  *ratelimit.RedisBuckets
}

// newRuntime loads configuration and applies flag overrides.
func newRuntime(opts *RootOptions) (*runtime, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.SetDatabase(opts.Database)
	}
	if opts.Handle != "" {
		cfg.Account.Handle = opts.Handle
	}

	return &runtime{
		opts:   opts,
		cfg:    cfg,
		logger: slog.Default(),
		stores: map[string]*store.Store{},
	}, nil
}

func (r *runtime) open(path string) (*store.Store, error) {
	if st, ok := r.stores[path]; ok {
		return st, nil
	}
	r.logger.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	r.stores[path] = st
	return st, nil
}

func (r *runtime) candidates() (*store.Store, error) {
	return r.open(r.cfg.Storage.Candidates)
}

func (r *runtime) sessions() (*store.Store, error) {
	return r.open(r.cfg.Storage.Sessions)
}

// limiter builds the action limiter on the configured backend.
func (r *runtime) limiter(ctx context.Context) (*ratelimit.Limiter, error) {
	var buckets ratelimit.BucketStore
	switch r.cfg.RateLimit.Backend {
	case config.BackendRedis:
		if r.redis == nil {
			rb, err := ratelimit.DialRedisBuckets(ctx, r.cfg.RateLimit.RedisAddr)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, "failed to connect rate limit backend", err)
			}
			r.redis = rb
		}
		buckets = r.redis
	default:
		st, err := r.open(r.cfg.Storage.RateLimit)
		if err != nil {
			return nil, err
		}
		buckets = st
	}

	l, err := ratelimit.New(buckets, r.cfg.RateLimit.LimiterWindows(), r.cfg.RateLimit.MaxWait,
		ratelimit.WithLogger(r.logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid rate limit", err)
	}
	return l, nil
}

func (r *runtime) client() *bsky.Client {
	return bsky.New(bsky.Config{
		PDSHost:           r.cfg.Service.PDSHost,
		AppViewHost:       r.cfg.Service.AppViewHost,
		RequestsPerSecond: r.cfg.Service.RequestsPerSecond,
		Logger:            r.logger,
	})
}

// authenticate resumes or creates a session for the configured account and
// registers the session manager for refresh notifications.
func (r *runtime) authenticate(ctx context.Context, client *bsky.Client) (session.Account, error) {
	if r.cfg.Account.Handle == "" {
		return session.Account{}, NewExitError(ExitCommandError,
			"account handle is required (--handle, account.handle or REACTSYNC_HANDLE)")
	}
	st, err := r.sessions()
	if err != nil {
		return session.Account{}, err
	}

	mgr := session.NewManager(st, client, r.logger)
	client.SetRefreshHandler(mgr)

	acct, err := mgr.Authenticate(ctx, r.cfg.Account.Handle, r.cfg.Account.Password)
	if err != nil {
		return session.Account{}, failureFor("authentication failed", err)
	}
	return acct, nil
}

// reporter draws progress on stderr in text mode and logs it in JSON mode.
func (r *runtime) reporter(cmd *cobra.Command) progress.Reporter {
	if r.opts.Format == "json" {
		return progress.NewLogReporter(r.logger, 100)
	}
	return progress.NewWriterReporter(cmd.ErrOrStderr())
}

// Close releases every opened resource.
func (r *runtime) Close() error {
	var errs []error
	for path, st := range r.stores {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *runtime) closeAndLog() {
	if err := r.Close(); err != nil {
		r.logger.Error("error closing resources", "error", err)
	}
}

// commandContext returns a context cancelled on SIGINT/SIGTERM or when the
// command's own context ends.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping; unfinished candidates stay staged", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
