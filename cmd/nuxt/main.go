package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yamatt/go-nuxt/internal/cli"
	"github.com/yamatt/go-nuxt/internal/config"
	"github.com/yamatt/go-nuxt/internal/logging"
	"github.com/yamatt/go-nuxt/internal/nuxt"
)

func main() {
	logger := logging.New(os.Stderr, os.Getenv("NUXT_LOG_LEVEL"))
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, logger, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			logger.Error(exitErr.Message)
			_ = logger.Sync()
			os.Exit(exitErr.Code)
		}
		logger.Fatal(err.Error())
	}
}

// run builds the command tree and executes it with args.
func run(ctx context.Context, stdout, stderr io.Writer, logger *zap.Logger, args []string) error {
	root := newRootCmd(stdout, stderr, logger)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer, logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "nuxt",
		Short:         "Serve a built Nuxt application",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(&cobra.Command{
		Use:   "start [dir]",
		Short: "Start the application in production mode (the application should be compiled with `nuxt build` first)",
		// Flags are parsed by cli.Start so that the usage text and the
		// hostname check behave the same with or without cobra.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Start(cmd.Context(), cli.Deps{
				Stderr: stderr,
				Logger: logger,
				NewFramework: func(o *config.Options, l *zap.Logger) cli.Framework {
					return nuxt.New(o, l, nuxt.WithOutput(stdout))
				},
			}, args)
		},
	})

	return root
}
