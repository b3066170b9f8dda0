package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"slotcal/internal/agg"
	"slotcal/internal/auth"
	"slotcal/internal/cache"
	"slotcal/internal/config"
	"slotcal/internal/gateway"
	appLog "slotcal/internal/log"
	"slotcal/internal/notify"
	"slotcal/internal/store"
	"slotcal/internal/warm"
	"slotcal/internal/web"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "slotcal",
		Short: "Group and personal scheduling service",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/slotcal/config.yaml", "path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(warmCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components shared by the serve and warm commands.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	records *store.Store
	rdb     *redis.Client
	svc     *agg.Service
	disp    *notify.Dispatcher
	bus     *notify.RedisBus
	tokens  *auth.TokenService
	warmer  *warm.Warmer
}

func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	records, err := store.New(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	views := cache.NewRedisStore(rdb)
	bus := notify.NewRedisBus(rdb, cfg.Redis.Channel)

	svc := agg.New(records, views, loc,
		time.Duration(cfg.Cache.GroupTTLMinutes)*time.Minute,
		time.Duration(cfg.Cache.MyTTLMinutes)*time.Minute,
	)
	disp := notify.NewDispatcher(views, bus, loc)

	tokens, err := auth.NewTokenService(cfg.Auth.Secret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("auth: %w", err)
	}

	return &app{
		cfg:     cfg,
		loc:     loc,
		records: records,
		rdb:     rdb,
		svc:     svc,
		disp:    disp,
		bus:     bus,
		tokens:  tokens,
		warmer:  warm.New(svc, records, cfg.WarmCron),
	}, nil
}

func (a *app) close() {
	if err := a.records.Close(); err != nil {
		appLog.Error("closing record store failed", err)
	}
	if err := a.rdb.Close(); err != nil {
		appLog.Error("closing redis client failed", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, realtime gateway and cache warmer",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			gw := gateway.New(a.tokens, a.bus)
			server := web.NewServer(a.cfg, a.svc, a.records, a.disp, a.tokens, gw, a.loc)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			httpServer := &http.Server{
				Addr:    a.cfg.Listen,
				Handler: server.Handler(),
			}

			appLog.Info("slotcal starting",
				"listen", a.cfg.Listen,
				"timezone", a.cfg.Timezone,
				"store_path", a.cfg.StorePath,
				"redis_addr", a.cfg.Redis.Addr,
				"channel", a.cfg.Redis.Channel,
				"warm_cron", a.cfg.WarmCron,
			)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			g.Go(func() error {
				return gw.Listen(gctx)
			})

			g.Go(func() error {
				return a.warmer.Run(gctx)
			})

			err = g.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			appLog.Info("slotcal exiting")
			return nil
		},
	}
}

func warmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Run one cache warm sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			a.warmer.WarmAll(cmd.Context())
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user is required")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tokens, err := auth.NewTokenService(cfg.Auth.Secret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
			if err != nil {
				return fmt.Errorf("auth: %w", err)
			}

			fmt.Println(tokens.Mint(userID))
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id the token identifies")
	return cmd
}
