package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-storefront/internal/config"
	"github.com/jrsteele09/go-storefront/internal/fakeapi"
	"github.com/jrsteele09/go-storefront/internal/logging"
	"github.com/rs/zerolog/log"
)

type flags struct {
	addr      string
	prefix    string
	cookies   bool
	accessTTL time.Duration
}

func main() {
	f := parseFlags()
	if err := run(f); err != nil {
		log.Fatal().Err(err).Msg("Error running fake API")
	}
	log.Info().Msg("Fake API stopped")
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.addr, "addr", config.GetEnv("FAKEAPI_ADDR", ":8000"), "listen address")
	flag.StringVar(&f.prefix, "prefix", "/api", "path prefix the API is served under")
	flag.BoolVar(&f.cookies, "cookies", false, "authenticate with session cookies instead of bearer tokens")
	flag.DurationVar(&f.accessTTL, "access-ttl", 5*time.Minute, "lifetime of issued access tokens")
	flag.Parse()
	return f
}

func run(f flags) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	env := config.GetEnv("ENV", "DEV")
	logger := logging.Setup(config.GetEnv("LOG_LEVEL", "debug"), env, os.Stderr)
	displayAppname("Fake API")

	opts := []fakeapi.Option{
		fakeapi.WithEnv(env),
		fakeapi.WithLogger(logger),
		fakeapi.WithAccessTTL(f.accessTTL),
	}
	if f.cookies {
		opts = append(opts, fakeapi.WithCookieSessions())
	}
	api, err := fakeapi.New(opts...)
	if err != nil {
		return err
	}

	var handler http.Handler = api
	if prefix := strings.TrimRight(f.prefix, "/"); prefix != "" {
		handler = http.StripPrefix(prefix, api)
	}
	server := &http.Server{Addr: f.addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(server, f.prefix)
	}()
	logger.Info().
		Str("admin", fakeapi.AdminEmail+" / "+fakeapi.AdminPassword).
		Str("customer", fakeapi.CustomerEmail+" / "+fakeapi.CustomerPassword).
		Msg("seeded accounts")

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server, prefix string) error {
	log.Info().Str("addr", server.Addr).Str("prefix", prefix).Msg("Fake API listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
