package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ocrdesk/ocrdesk/internal/api"
	"github.com/ocrdesk/ocrdesk/internal/config"
	"github.com/ocrdesk/ocrdesk/internal/engine"
	"github.com/ocrdesk/ocrdesk/internal/engine/tesseract"
	"github.com/ocrdesk/ocrdesk/internal/gpu"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/storage"
	"github.com/ocrdesk/ocrdesk/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Config lives next to the executable unless OCRDESK_CONFIG says otherwise
	configPath := os.Getenv("OCRDESK_CONFIG")
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(filepath.Dir(exePath), "ocrdesk.config.xml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{
		Level:   cfg.Advanced.LogLevel,
		Format:  cfg.Advanced.LogFormat,
		Service: "ocrdesk-server",
	})

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("failed to create directories")
	}

	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to initialize storage")
	}
	defer store.Close()

	// A missing engine is not fatal: /ocr answers 503 until one is installed
	jobs := upload.NewManager(loadEngine(cfg, log), cfg.OCR.MaxConcurrentJobs, log)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/health" || path == "/gpu"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	// The OCR stream and the job feed must not be buffered by gzip
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/ocr" || strings.HasPrefix(path, "/ws/")
		},
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			ExposeHeaders: []string{"X-Filename"},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:        store,
		Jobs:         jobs,
		GPU:          gpu.NewProber(nil),
		Version:      Version,
		MaxWSMessage: cfg.Advanced.WebSocketMaxMessageSize * 1024,
		Logger:       log,
	}))

	s := &http.Server{
		Addr:        cfg.GetServerAddr(),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// Zero by default: OCR responses stream for as long as the model runs
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           OCR Desk Server                                 ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Engine:     %-45s║\n", engineLabel(jobs))
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Storage:   %-46s║\n", cfg.Storage.Backend)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Finished jobs are kept for the job feed, then dropped
	g.Go(func() error {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := jobs.CleanupOldJobs(cfg.JobRetention()); n > 0 {
					log.Debug().Int("removed", n).Msg("old jobs cleaned up")
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		if n := jobs.AbortAll(); n > 0 {
			log.Info().Int("jobs", n).Msg("aborted running jobs")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func openStore(cfg *config.AppConfig, log zerolog.Logger) (storage.Store, error) {
	if cfg.Storage.Backend == config.BackendDuckDB {
		return storage.NewDuckStore(cfg.Storage.DatabaseFile, log)
	}
	return storage.NewLocalStore(cfg.Storage.HistoryDirectory, log)
}

// loadEngine returns nil when the engine cannot start.
func loadEngine(cfg *config.AppConfig, log zerolog.Logger) engine.Engine {
	eng, err := tesseract.New(tesseract.WithLanguages(cfg.LanguageList()...))
	if err != nil {
		log.Error().Err(err).Msg("OCR engine failed to load; /ocr will answer 503")
		return nil
	}
	log.Info().Str("engine", eng.Name()).Str("version", tesseract.Version()).Strs("languages", cfg.LanguageList()).Msg("OCR engine loaded")
	return eng
}

func engineLabel(jobs *upload.Manager) string {
	if !jobs.HasEngine() {
		return "not loaded"
	}
	return jobs.EngineName()
}
