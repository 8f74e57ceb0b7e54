package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"streamweave/api"
	"streamweave/config"
	"streamweave/handlers"
	"streamweave/services/affinity"
	"streamweave/services/captions"
	"streamweave/services/hosts"
	"streamweave/services/manifest"
	"streamweave/services/prefetch"
	"streamweave/services/resolver"
	"streamweave/services/sources"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {

	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 streamweave Backend Starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("STREAMWEAVE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		// Ensure log directory exists
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Redirect standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Affinity store (sqlite, migrated on open)
	if dir := filepath.Dir(settings.Database.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create database directory: %v", err)
		}
	}
	affinityStore, err := affinity.Open(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open affinity store: %v", err)
	}
	defer affinityStore.Close()

	// Core services
	sourceRegistry := sources.NewRegistry(settings)
	hostRegistry := hosts.NewRegistry(nil)
	normalizer := resolver.NewNormalizer(hostRegistry, settings.Proxy.PublicBase)
	resolverSvc := resolver.NewService(sourceRegistry, affinityStore, normalizer, settings.Streaming)
	introspector := manifest.NewIntrospector(nil)
	prefetchMgr := prefetch.NewManager(nil, introspector, settings.Prefetch)
	defer prefetchMgr.StopAll()
	captionSvc := captions.NewService(nil, nil, settings.Captions.CacheDir)

	// Handlers
	settingsHandler := handlers.NewSettingsHandler(cfgManager, func(updated config.Settings) {
		sourceRegistry.Reload(updated)
	})
	playbackHandler := handlers.NewPlaybackHandler(resolverSvc)
	tracksHandler := handlers.NewTracksHandler(introspector, settings.Proxy.PublicBase)
	captionsHandler := handlers.NewCaptionsHandler(captionSvc)
	prefetchHandler := handlers.NewPrefetchHandler(prefetchMgr)
	proxyHandler := handlers.NewStreamProxyHandler(nil, settings.Proxy.PublicBase)

	r := mux.NewRouter()
	api.Register(r,
		settingsHandler,
		playbackHandler,
		tracksHandler,
		captionsHandler,
		prefetchHandler,
		proxyHandler,
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("🧹 Stopping prefetch sessions...")
	prefetchMgr.StopAll()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
