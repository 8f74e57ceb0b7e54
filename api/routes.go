package api

import (
	"net/http"
	"net/http/pprof"

	"streamweave/handlers"

	"github.com/gorilla/mux"
)

// localhostOnlyMiddleware restricts access to localhost requests only
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		// Strip port if present
		for i := len(host) - 1; i >= 0; i-- {
			if host[i] == ':' {
				host = host[:i]
				break
			}
		}
		// Allow localhost, 127.0.0.1, ::1
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	settingsHandler *handlers.SettingsHandler,
	playbackHandler *handlers.PlaybackHandler,
	tracksHandler *handlers.TracksHandler,
	captionsHandler *handlers.CaptionsHandler,
	prefetchHandler *handlers.PrefetchHandler,
	proxyHandler *handlers.StreamProxyHandler,
) {
	api := r.PathPrefix("/api").Subrouter()

	// Add CORS middleware to API subrouter
	api.Use(corsMiddleware)

	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)
	api.HandleFunc("/settings", settingsHandler.Options).Methods(http.MethodOptions)

	api.HandleFunc("/playback/resolve", playbackHandler.Resolve).Methods(http.MethodPost)
	api.HandleFunc("/playback/resolve", playbackHandler.Options).Methods(http.MethodOptions)

	api.HandleFunc("/playback/tracks", tracksHandler.Introspect).Methods(http.MethodPost)
	api.HandleFunc("/playback/tracks", tracksHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/playback/tracks/quality", tracksHandler.SelectQuality).Methods(http.MethodPost)
	api.HandleFunc("/playback/tracks/quality", tracksHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/playback/tracks/audio", tracksHandler.SelectAudio).Methods(http.MethodPost)
	api.HandleFunc("/playback/tracks/audio", tracksHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/playback/tracks/caption", tracksHandler.SelectCaption).Methods(http.MethodPost)
	api.HandleFunc("/playback/tracks/caption", tracksHandler.Options).Methods(http.MethodOptions)

	api.HandleFunc("/captions/load", captionsHandler.Load).Methods(http.MethodPost)
	api.HandleFunc("/captions/load", captionsHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/captions/session", captionsHandler.ClearSession).Methods(http.MethodDelete)
	api.HandleFunc("/captions/session", captionsHandler.Options).Methods(http.MethodOptions)

	api.HandleFunc("/prefetch/sessions", prefetchHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/prefetch/sessions", prefetchHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/prefetch/sessions", prefetchHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/prefetch/sessions/{sessionID}", prefetchHandler.UpdateState).Methods(http.MethodPatch)
	api.HandleFunc("/prefetch/sessions/{sessionID}", prefetchHandler.Stop).Methods(http.MethodDelete)
	api.HandleFunc("/prefetch/sessions/{sessionID}", prefetchHandler.Options).Methods(http.MethodOptions)

	api.HandleFunc("/stream/proxy", proxyHandler.Proxy).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/stream/proxy", proxyHandler.Options).Methods(http.MethodOptions)

	// Version endpoint (public)
	versionHandler := handlers.NewVersionHandler()
	api.HandleFunc("/version", versionHandler.GetVersion).Methods(http.MethodGet, http.MethodOptions)

	// Pprof debug endpoints for profiling (localhost only)
	pprofRouter := api.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.Use(localhostOnlyMiddleware)
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.HandleFunc("/allocs", pprof.Handler("allocs").ServeHTTP)
	pprofRouter.HandleFunc("/goroutine", pprof.Handler("goroutine").ServeHTTP)
	pprofRouter.HandleFunc("/heap", pprof.Handler("heap").ServeHTTP)
}
