package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shelltown.ai/internal/persistence/indexdb"
	"shelltown.ai/internal/sim/world"
	"shelltown.ai/internal/transport/observer"
)

type saver interface {
	SaveNow(ctx context.Context) error
}

type adminDeps struct {
	world     *world.World
	saver     saver
	index     *indexdb.SQLiteIndex
	observers *observer.Server
}

type adminState struct {
	WorldID   string         `json:"world_id"`
	Metrics   world.Metrics  `json:"metrics"`
	Observers int64          `json:"observers_connected"`
	Index     *indexdb.Stats `json:"index,omitempty"`
}

// mountAdmin adds the local-only admin endpoints when ST_ENABLE_ADMIN_HTTP allows it.
func mountAdmin(r chi.Router, d adminDeps, logger *zap.Logger) {
	if envBool("ST_ENABLE_PPROF_HTTP", false) {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	if !envBool("ST_ENABLE_ADMIN_HTTP", true) {
		logger.Info("admin endpoints disabled (ST_ENABLE_ADMIN_HTTP=false)")
		return
	}
	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(loopbackOnly)
		r.Get("/state", d.state)
		r.Post("/snapshot", d.snapshot)
	})
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (d adminDeps) state(rw http.ResponseWriter, r *http.Request) {
	resp := adminState{WorldID: d.world.ID(), Metrics: d.world.Metrics()}
	if d.observers != nil {
		resp.Observers = d.observers.Active()
	}
	if d.index != nil {
		st := d.index.Stats()
		resp.Index = &st
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (d adminDeps) snapshot(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	rw.Header().Set("Content-Type", "application/json")
	if err := d.saver.SaveNow(ctx); err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
