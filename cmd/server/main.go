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
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-login/auth"
	"github.com/jrsteele09/go-session-login/internal/config"
	"github.com/jrsteele09/go-session-login/server"
	"github.com/jrsteele09/go-session-login/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML settings file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded into the environment")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run(configPath, envFile string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(configPath, envFile)
	setupLogging(c)
	if err != nil {
		// Not fatal: whatever could not be used has been replaced by defaults
		log.Warn().Err(err).Msg("Configuration incomplete, using defaults where needed")
	}
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepo(ctx, c)
	if err != nil {
		return fmt.Errorf("opening %s session store: %w", c.GetSessionStore(), err)
	}
	store := sessions.NewStore(repo, c.GetSessionIdleTimeout(), sessions.WithCookie(sessions.CookieOptions{
		Name:   c.GetSessionCookieName(),
		Secure: c.GetSessionCookieSecure(),
	}))
	defer func() {
		if err := store.Close(); err != nil {
			log.Err(err).Msg("Failed to close session store")
		}
	}()

	flow := auth.NewFlow(auth.AcceptAll, auth.WithPasswordLogging(c.GetEnv() == config.EnvDev))
	handler, err := server.New(c, store, flow)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	srv := &http.Server{
		Addr:              c.GetListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(srv)
	})
	g.Go(func() error {
		return store.RunSweeper(gctx, c.GetSessionSweepInterval())
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv)
	})
	return g.Wait()
}

// openRepo builds the session backend named by the configuration
func openRepo(ctx context.Context, c config.SessionConfig) (sessions.Repo, error) {
	idle := c.GetSessionIdleTimeout()
	log.Info().Str("store", c.GetSessionStore()).Dur("idle_timeout", idle).Msg("Opening session store")

	switch c.GetSessionStore() {
	case config.StoreRedis:
		client, err := sessions.DialRedis(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB())
		if err != nil {
			return nil, err
		}
		return sessions.NewRedisRepo(client, c.GetRedisPrefix(), idle, nil), nil
	case config.StoreSQLite:
		repo, err := sessions.OpenSQLiteRepo(c.GetSQLitePath(), idle, nil)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return sessions.NewInMemoryRepo(idle, nil), nil
	}
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.GetEnv() == config.EnvDev {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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
