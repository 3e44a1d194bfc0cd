package serveapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evalgo/eve-build/common"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/targetcache"
	"github.com/evalgo/eve-build/targetmap"
)

// ArchiveResolver resolves an archive digest to the tree it unpacks to.
// Archive extraction itself is out of this core's scope (§2); a real
// cmd/eve-serve deployment injects an implementation backed by whatever
// archive store it fronts.
type ArchiveResolver interface {
	ResolveTree(ctx context.Context, archiveDigest exhash.Digest) (exhash.Digest, bool, error)
}

// ArchiveResolverFunc adapts a plain function to ArchiveResolver.
type ArchiveResolverFunc func(ctx context.Context, archiveDigest exhash.Digest) (exhash.Digest, bool, error)

func (f ArchiveResolverFunc) ResolveTree(ctx context.Context, archiveDigest exhash.Digest) (exhash.Digest, bool, error) {
	return f(ctx, archiveDigest)
}

// VariableLookup answers serve_target_variables: the configuration
// variable names target's rule reads, independent of any configuration's
// values. Distinct from targetcache since that information isn't part of
// a cache entry; a real deployment backs this with its rule registry.
type VariableLookup interface {
	Variables(target targetmap.TargetName) ([]string, bool)
}

// ServerConfig mirrors the teacher's http.ServerConfig shape (timeouts,
// port), translated to the chi-based adapter this repo uses in place of
// echo for the "service-facing interface, consumed not provided" of §6.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8090",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server is the serve subsystem's HTTP adapter: it fronts a target
// cache, an archive resolver and a variable lookup, exposing them as the
// three calls §6 names.
type Server struct {
	cache     *targetcache.Cache
	archives  ArchiveResolver
	variables VariableLookup
	logger    *common.ContextLogger
}

// NewServer builds a Server over cache, archives and variables. archives
// or variables may be nil; the corresponding endpoint then always
// reports Found: false.
func NewServer(cache *targetcache.Cache, archives ArchiveResolver, variables VariableLookup) *Server {
	return &Server{
		cache:     cache,
		archives:  archives,
		variables: variables,
		logger:    common.NewContextLogger(common.Logger, map[string]interface{}{"component": "serveapi"}),
	}
}

// Router builds the chi router this server answers requests on.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/v1/retrieve-tree-from-archive", s.handleRetrieveTree)
	r.Post("/v1/serve-target", s.handleServeTarget)
	r.Post("/v1/serve-target-variables", s.handleServeTargetVariables)
	return r
}

// ListenAndServe starts an *http.Server bound to config over Router,
// blocking until ctx is done, then shutting down within
// config.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, config ServerConfig) error {
	httpServer := &http.Server{
		Addr:         config.Addr,
		Handler:      s.Router(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down serve endpoint")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRetrieveTree(w http.ResponseWriter, r *http.Request) {
	var req retrieveTreeRequestWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	archiveDigest, err := exhash.FromHex(req.ArchiveDigest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.archives == nil {
		writeJSON(w, http.StatusOK, retrieveTreeResponseWire{Found: false})
		return
	}
	treeID, found, err := s.archives.ResolveTree(r.Context(), archiveDigest)
	if err != nil {
		s.logger.WithError(err).Warn("archive resolution failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := retrieveTreeResponseWire{Found: found}
	if found {
		resp.TreeID = treeID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleServeTarget(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := decodeTargetRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	key, err := targetcache.ComputeKey(req.RepoRootTreeID, req.Target, req.Config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	entry, _, err := s.cache.Read(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusOK, serveTargetResponseWire{Found: false})
		return
	}
	data, err := entry.Marshal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, serveTargetResponseWire{
		Found:        true,
		ResultDigest: exhash.Compute(data).String(),
	})
}

func (s *Server) handleServeTargetVariables(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := decodeTargetRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.variables == nil {
		writeJSON(w, http.StatusOK, serveTargetVariablesResponseWire{Found: false})
		return
	}
	vars, found := s.variables.Variables(req.Target)
	writeJSON(w, http.StatusOK, serveTargetVariablesResponseWire{Variables: vars, Found: found})
}

func decodeBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponseWire{Error: err.Error()})
}
