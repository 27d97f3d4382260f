package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raylab/nodeguard/internal/agent"
	"github.com/raylab/nodeguard/internal/metrics"
	"github.com/raylab/nodeguard/internal/supervisor"
)

// Router provides embeddable HTTP handlers for the node agent.
// Endpoints:
//
//	GET  {basePath}/status        query: name=... (single) or empty (all)
//	POST {basePath}/start         query: name=...
//	POST {basePath}/stop          query: name=...
//	GET  {basePath}/healthz
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	agt      *agent.Agent
	basePath string
	metrics  bool
}

// NewRouter constructs a Router with a configurable basePath. When
// withMetrics is true, GET /metrics serves the Prometheus registry.
func NewRouter(agt *agent.Agent, basePath string, withMetrics bool) *Router {
	return &Router{agt: agt, basePath: sanitizeBase(basePath), metrics: withMetrics}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/healthz", r.handleHealthz)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, withMetrics bool, agt *agent.Agent) (*http.Server, error) {
	r := NewRouter(agt, basePath, withMetrics)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, r.agt.StatusAll())
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name"})
		return
	}
	st, err := r.agt.Status(name)
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Query("name")
	if name == "" || !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	if err := r.agt.StartProgram(name); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			code = http.StatusConflict
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	if name == "" || !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	if err := r.agt.StopProgram(name); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
