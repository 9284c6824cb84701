package httpserver

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kevadb/keva/internal/runtime"
	"github.com/kevadb/keva/internal/server/http/controllers"
	kvsvc "github.com/kevadb/keva/internal/services/kv"
	"github.com/kevadb/keva/internal/telemetry"
	logpkg "github.com/kevadb/keva/pkg/log"
)

// Server is the HTTP transport: the knowledge-store endpoints, health,
// and the metrics exposition, behind CORS and single-principal bearer
// authorization.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New wires the controllers onto a mux and returns the Server.
func New(rt *runtime.Runtime, svc *kvsvc.Service, metrics *telemetry.Metrics, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("http"))
	}
	mux := http.NewServeMux()
	s := &Server{rt: rt, logger: logger}

	registry := controllers.NewControllerRegistry(rt, svc)
	registry.RegisterAllRoutes(mux)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	handler := cors(authorize(rt.Config().AuthToken, mux))
	s.srv = &http.Server{Handler: handler}
	return s
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.With(logpkg.Str("addr", l.Addr().String())).Info("http.listen")
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// Handler exposes the configured handler; used by tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorize enforces the single authorized bearer principal on the
// knowledge-store endpoints. Health and metrics stay open. An empty token
// disables the check.
func authorize(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/kb/") {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			controllers.WriteRefusal(w, http.StatusUnauthorized, string(kvsvc.CodeUnauthorized), "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
