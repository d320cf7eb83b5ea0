package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-storefront/cart"
	"github.com/jrsteele09/go-storefront/internal/config"
	"github.com/jrsteele09/go-storefront/internal/logging"
	"github.com/jrsteele09/go-storefront/storefront"
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("storefront", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "override config file path (optional)")
	envPath := global.String("env-file", "", "override .env path (optional)")
	global.Usage = func() { usage(stderr, global) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		usage(stderr, global)
		return 2
	}

	cmd, ok := lookup(global.Arg(0))
	if !ok {
		fmt.Fprintf(stderr, "storefront: unknown command %q\n", global.Arg(0))
		usage(stderr, global)
		return 2
	}

	cfg, err := config.Load(config.LoadOptions{DotEnvPath: *envPath, FilePath: *configPath})
	if err != nil {
		fmt.Fprintf(stderr, "storefront: %v\n", err)
		return 1
	}
	logger := logging.Setup(cfg.GetLogLevel(), cfg.GetEnv(), stderr)
	if cfg.GetCredentialMode() == config.CredentialCookie {
		logger.Warn().Msg("cookie credentials are not persisted between invocations; use bearer mode for the CLI")
	}

	out := newPrinter(stdout)
	app, err := storefront.New(cfg,
		storefront.WithLogger(logger),
		storefront.WithNotifier(cart.NotifierFunc(func(msg string) { out.Error(stderr, msg) })),
	)
	if err != nil {
		fmt.Fprintf(stderr, "storefront: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app.Start(ctx)
	if err := cmd.run(ctx, app, out, global.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "usage: storefront %s %s\n", cmd.name, cmd.args)
			return 2
		}
		out.Error(stderr, err.Error())
		return 1
	}
	return 0
}

func usage(w io.Writer, global *flag.FlagSet) {
	banner := figure.NewFigure("Storefront", "cybermedium", true)
	fmt.Fprintln(w, banner.String())
	fmt.Fprintln(w, "usage: storefront [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	global.PrintDefaults()
}
