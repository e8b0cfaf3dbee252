package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kwv/beaconmesh/mesh"
	"go.uber.org/zap"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(store *mesh.ResultStore, render mesh.RenderConfig, metrics *mesh.Metrics, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", metrics.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health request", zap.String("remote", r.RemoteAddr))
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasResult bool      `json:"hasResult"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasResult: store.HasResult(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Warn("encoding health status", zap.Error(err))
		}
	})

	mux.HandleFunc("/result.json", func(w http.ResponseWriter, r *http.Request) {
		res, ok := requireResult(w, store)
		if !ok {
			return
		}
		summary := mesh.Summarize(res)
		summary.Timestamp = store.ComputedAt().Unix()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			logger.Warn("encoding result", zap.Error(err))
		}
	})

	mux.HandleFunc("/map.geojson", func(w http.ResponseWriter, r *http.Request) {
		res, ok := requireResult(w, store)
		if !ok {
			return
		}
		data, err := mesh.MarshalGeoJSON(res)
		if err != nil {
			logger.Error("marshaling geojson", zap.Error(err))
			http.Error(w, "Failed to encode GeoJSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(data)
	})

	mux.HandleFunc("/map.svg", func(w http.ResponseWriter, r *http.Request) {
		res, ok := requireResult(w, store)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := mesh.NewVectorRenderer(res, render).RenderToSVG(w); err != nil {
			logger.Error("rendering svg", zap.Error(err))
		}
	})

	mux.HandleFunc("/map.png", func(w http.ResponseWriter, r *http.Request) {
		res, ok := requireResult(w, store)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mesh.NewRasterRenderer(res, render).RenderToPNG(w); err != nil {
			logger.Error("rendering png", zap.Error(err))
		}
	})

	return mux
}

func requireResult(w http.ResponseWriter, store *mesh.ResultStore) (*mesh.Result, bool) {
	res := store.Get()
	if res == nil {
		http.Error(w, "No result available", http.StatusServiceUnavailable)
		return nil, false
	}
	return res, true
}
