package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driver-nav-service/internal/adapters/cache"
	"driver-nav-service/internal/adapters/location"
	"driver-nav-service/internal/adapters/overpass"
	"driver-nav-service/internal/adapters/routing"
	"driver-nav-service/internal/adapters/taskapi"
	"driver-nav-service/internal/api"
	"driver-nav-service/internal/api/handlers"
	"driver-nav-service/internal/config"
	"driver-nav-service/internal/mapdata"
	"driver-nav-service/internal/navigation"
	"driver-nav-service/internal/platform/clock"
	"driver-nav-service/internal/platform/db"
	"driver-nav-service/internal/platform/logging"
	"driver-nav-service/internal/ports"
	"driver-nav-service/internal/render"
	"driver-nav-service/internal/services"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// main is the application composition root.
// It wires the backend client, OSRM, Overpass and the location source behind
// ports and serves the navigation API until interrupted.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load(config.Get("CONFIG_PATH", "driverd.toml"))
	if err != nil {
		log.Fatal(err)
	}

	lg, logCloser, err := logging.New(logging.Options{
		Dir:    cfg.Log.Dir,
		Level:  cfg.Log.Level,
		Stderr: cfg.Log.Stderr,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer logCloser.Close()
	slog.SetDefault(lg)

	if err := run(cfg, lg); err != nil {
		lg.Error("driverd stopped", slog.Any("err", err))
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, lg *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real{}

	store, closeStore, err := openRoadStore(ctx, cfg.MapData, lg)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	routes, err := routing.NewOSRMRouteProvider(cfg.Routing.OSRMURL, cfg.Routing.Profile, cfg.Routing.Timeout.Duration, lg)
	if err != nil {
		return err
	}

	classes, err := overpass.FilterClasses(cfg.MapData.Classes)
	if err != nil {
		return err
	}
	roads := mapdata.NewService(
		overpass.NewProvider(cfg.MapData.OverpassURL, 0, lg),
		store,
		clk,
		lg,
		mapdata.Options{
			CellSizeDeg:   cfg.MapData.CellSizeDeg,
			RadiusDeg:     cfg.MapData.RadiusDeg,
			TTL:           cfg.MapData.TTL.Duration,
			Retention:     cfg.MapData.Retention.Duration,
			MovementGateM: cfg.MapData.MovementGateM,
			MinInterval:   cfg.MapData.MinInterval.Duration,
			MaxBackoff:    cfg.MapData.MaxBackoff.Duration,
			Classes:       classes,
			IncludePlaces: cfg.MapData.IncludePlaces,
		},
	)

	nav := navigation.New(routes, clk, lg, navigation.Config{
		ManeuverThreshold: cfg.Navigation.ManeuverThresholdM,
		ArrivalThreshold:  cfg.Navigation.ArrivalThresholdM,
		RequireIDCheck:    cfg.Navigation.RequireIDCheck,
		RouteRetryBase:    cfg.Navigation.RouteRetryBase.Duration,
		RouteRetryMax:     cfg.Navigation.RouteRetryMax.Duration,
	})

	backend, err := taskapi.New(cfg.Backend.BaseURL, cfg.Backend.Timeout.Duration, lg)
	if err != nil {
		return err
	}

	// A recorded track replaces the device; otherwise fixes arrive over HTTP.
	var src ports.LocationSource
	var sink handlers.PositionSink
	if cfg.Location.GPXPath != "" {
		replay, err := location.LoadGPXFile(cfg.Location.GPXPath, clk, lg, location.ReplayOptions{
			Speed: cfg.Location.Speed,
			Loop:  cfg.Location.Loop,
		})
		if err != nil {
			return err
		}
		lg.Info("replaying gpx track", slog.String("path", cfg.Location.GPXPath), slog.Int("points", replay.Len()))
		src = replay
	} else {
		ch := location.NewChannelSource(16)
		src, sink = ch, ch
	}

	session := services.NewSession(nav, backend, location.NewHeadingTracker(src), services.LogVoice{Log: lg}, clk, lg, services.Options{
		DriverID:       cfg.DriverID,
		PollInterval:   cfg.Backend.PollInterval.Duration,
		ReportInterval: cfg.Backend.ReportInterval.Duration,
	})

	hub := handlers.NewSceneHub(lg)
	renderer := render.NewRenderer(nav, roads, hub, clk, lg, render.DefaultOptions())

	done := make(chan struct{})
	router := api.NewRouter(api.Deps{
		State:    nav,
		Actions:  session,
		Roads:    roads,
		Scenes:   hub,
		Zoom:     renderer,
		Location: sink,
		Done:     done,
	}, lg)

	// Websocket streams are long lived, so there is no write timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := renderer.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		renderer.Close()
		return nil
	})
	g.Go(func() error {
		lg.Info("server listening", slog.String("addr", srv.Addr), slog.String("driver_id", cfg.DriverID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		close(done)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	st := roads.Stats()
	lg.Info("shutdown complete",
		slog.Int64("map_fetches", st.Fetches),
		slog.Int64("map_failures", st.Failures),
		slog.Int64("map_cell_hits", st.CellHits),
	)
	return err
}

// openRoadStore builds the optional persistent tier for road cells. The
// closer is always non-nil.
func openRoadStore(ctx context.Context, c config.MapDataConfig, lg *slog.Logger) (ports.RoadCellStore, io.Closer, error) {
	switch c.Store {
	case "", "none":
		return nil, io.NopCloser(nil), nil
	case "postgres":
		conn, err := db.Open(c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := cache.InitSchema(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return cache.NewSQLRoadCellStore(conn, lg), conn, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("open redis %q: %w", c.RedisAddr, err)
		}
		return cache.NewRedisRoadCellStore(rdb, c.Retention.Duration, lg), rdb, nil
	default:
		return nil, nil, fmt.Errorf("unknown map_data.store %q", c.Store)
	}
}
