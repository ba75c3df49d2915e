package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/yamatt/go-nuxt/internal/args"
	"github.com/yamatt/go-nuxt/internal/config"
	"github.com/yamatt/go-nuxt/internal/nuxt"
	"github.com/yamatt/go-nuxt/internal/renderer"
)

const defaultShutdownTimeout = 5 * time.Second

// Framework is the application server started by the command.
type Framework interface {
	Options() *config.Options
	Hook(name string, fn nuxt.HookFunc)
	Listen(ctx context.Context) error
	ShowReady(openBrowser bool)
	Close(ctx context.Context) error
}

// Deps holds everything Start needs from its environment.
type Deps struct {
	Stderr          io.Writer
	Logger          *zap.Logger
	Env             config.Env
	NewFramework    func(*config.Options, *zap.Logger) Framework
	ShutdownTimeout time.Duration
}

// Start runs `nuxt start` with the raw arguments following the command name.
// It blocks while the server runs and returns nil after a graceful shutdown
// triggered by ctx, or after printing help.
func Start(ctx context.Context, deps Deps, rawArgs []string) error {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	a, err := args.Parse(rawArgs)
	if err != nil {
		return &ExitError{Code: 2, Message: fmt.Sprintf("%v (see `nuxt start --help`)", err), Err: ErrInvalidArgument}
	}

	if a.HostnameSet && a.Hostname == "" {
		return &ExitError{Code: 2, Message: "Provided hostname argument has no value", Err: ErrInvalidArgument}
	}

	if a.Help {
		args.Usage(stderr)
		return nil
	}

	env := deps.Env
	if env == nil {
		env = config.EnvFromOS()
	}
	opts, err := config.Load(a, env)
	if err != nil {
		return err
	}

	// Force production mode.
	opts.Dev = false

	fw := deps.NewFramework(opts, logger)

	hookErrs := make(chan error, 1)
	fw.Hook(nuxt.HookError, func(_ context.Context, hookArgs ...any) error {
		select {
		case hookErrs <- hookError(hookArgs):
		default:
		}
		return nil
	})

	// Check if project is built for production.
	distDir := config.DistDir(fw.Options())
	if !exists(distDir) {
		return fmt.Errorf("%w: No build files found in %s, please run `nuxt build` before launching `nuxt start`", ErrMissingArtifact, distDir)
	}

	// Check if SSR bundle is required.
	if config.SSREnabled(fw.Options()) {
		bundlePath := filepath.Join(distDir, renderer.ServerBundleFile)
		if !exists(bundlePath) {
			return fmt.Errorf("%w: No SSR build! Please start with `nuxt start --spa` or build using `nuxt build --universal`", ErrMissingArtifact)
		}
	}

	logger.Debug("Build output found", zap.String("dist_dir", distDir), zap.String("mode", fw.Options().Mode))

	if err := fw.Listen(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrFramework, err)
	}
	fw.ShowReady(false)

	select {
	case <-ctx.Done():
		return shutdown(fw, deps.ShutdownTimeout)
	case err := <-hookErrs:
		if closeErr := shutdown(fw, deps.ShutdownTimeout); closeErr != nil {
			logger.Warn("Shutdown after error failed", zap.Error(closeErr))
		}
		return fmt.Errorf("%w: %w", ErrFramework, err)
	}
}

func shutdown(fw Framework, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fw.Close(ctx)
}

func hookError(hookArgs []any) error {
	if len(hookArgs) > 0 {
		if err, ok := hookArgs[0].(error); ok {
			return err
		}
		return fmt.Errorf("%v", hookArgs[0])
	}
	return errors.New("unknown error")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
