// Package server exposes the viewer over HTTP so a host can drive page
// lifecycles and inspect the rendered document.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdex-tech/kdex-pageview/internal/bus"
	kdexhttp "github.com/kdex-tech/kdex-pageview/internal/http"
	"github.com/kdex-tech/kdex-pageview/internal/viewer"
	"github.com/kdex-tech/kdex-pageview/internal/web/middleware"
)

// DefaultWait bounds how long a load request with ?wait=true blocks.
const DefaultWait = 30 * time.Second

type handler struct {
	viewer *viewer.Viewer
	wait   time.Duration
}

func New(addr string, v *viewer.Viewer, gatherer prometheus.Gatherer, log logr.Logger) *http.Server {
	h := &handler{viewer: v, wait: DefaultWait}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /document", h.document)
	mux.HandleFunc("GET /pages", h.pages)
	mux.HandleFunc("GET /pages/{page}", h.page)
	mux.HandleFunc("POST /pages/{page}/load", h.load)
	mux.HandleFunc("POST /pages/{page}/preload", h.preload)
	mux.HandleFunc("POST /pages/{page}/unload", h.unload)
	mux.HandleFunc("POST /available", h.available)
	mux.HandleFunc("POST /focus/{page}", h.focus)
	mux.HandleFunc("POST /text", h.text)
	mux.HandleFunc("POST /zoom", h.zoom)

	wrapped := middleware.WithLogger(log)(middleware.WithRequestID()(mux))

	return &http.Server{
		Addr:              addr,
		Handler:           wrapped,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *handler) document(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.viewer.Render(w); err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "render document")
	}
}

func (h *handler) pages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.viewer.Pages())
}

func (h *handler) page(w http.ResponseWriter, r *http.Request) {
	pageNum, ok := pageParam(w, r)
	if !ok {
		return
	}
	state, err := h.viewer.Page(pageNum)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

func (h *handler) load(w http.ResponseWriter, r *http.Request) {
	pageNum, ok := pageParam(w, r)
	if !ok {
		return
	}
	wait, err := kdexhttp.GetBool("wait", false, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	op, err := h.viewer.Load(pageNum)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !wait {
		h.state(w, r, pageNum, http.StatusAccepted)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.wait)
	defer cancel()
	if err := op.Wait(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logr.FromContextOrDiscard(r.Context()).V(1).Info("load failed", "page", pageNum, "error", err.Error())
	}
	h.state(w, r, pageNum, http.StatusOK)
}

func (h *handler) preload(w http.ResponseWriter, r *http.Request) {
	pageNum, ok := pageParam(w, r)
	if !ok {
		return
	}
	if err := h.viewer.Preload(pageNum); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) unload(w http.ResponseWriter, r *http.Request) {
	pageNum, ok := pageParam(w, r)
	if !ok {
		return
	}
	if err := h.viewer.Unload(pageNum); err != nil {
		writeError(w, r, err)
		return
	}
	h.state(w, r, pageNum, http.StatusOK)
}

func (h *handler) available(w http.ResponseWriter, r *http.Request) {
	msg := bus.PageAvailable{}
	var err error
	if msg.Page, err = kdexhttp.GetInt("page", 0, r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if msg.UpTo, err = kdexhttp.GetInt("upto", 0, r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if msg.All, err = kdexhttp.GetBool("all", false, r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.viewer.Available(msg)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) focus(w http.ResponseWriter, r *http.Request) {
	pageNum, ok := pageParam(w, r)
	if !ok {
		return
	}
	h.viewer.Focus(pageNum)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) text(w http.ResponseWriter, r *http.Request) {
	enabled, err := kdexhttp.GetBool("enabled", true, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.viewer.SetTextEnabled(enabled)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) zoom(w http.ResponseWriter, r *http.Request) {
	pageNum, ok := pageParam(w, r)
	if !ok {
		return
	}
	visible, err := kdexhttp.GetInts("visible", r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.viewer.Zoom(pageNum, visible)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) state(w http.ResponseWriter, r *http.Request, pageNum int, status int) {
	state, err := h.viewer.Page(pageNum)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, status, state)
}

func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	pageNum, err := kdexhttp.GetInt("page", 0, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return pageNum, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, viewer.ErrPageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, viewer.ErrNotLoadable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logr.FromContextOrDiscard(r.Context()).Error(err, "request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "encode response")
	}
}
