// Package webui serves one harmonized artifact over HTTP. The artifact is
// loaded and indexed once at startup; every request is answered from memory.
//
// Routes:
//
//	GET /             → filter form with results rendered inline
//	GET /api/query    → rows matching ?filter=k=v (repeatable), one JSON object per line
//	GET /api/inspect  → inventory of the artifact as JSON
//	GET /healthz      → liveness
package webui

import (
	"context"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"phoenix/internal/inspect"
	"phoenix/internal/logging"
	"phoenix/internal/metrics"
	"phoenix/internal/query"
	"phoenix/internal/records"
)

// Config controls server startup.
type Config struct {
	Addr string
	// MaxRows caps rows per response; 0 means unlimited.
	MaxRows int
}

// Server answers queries over one in-memory artifact.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	tmpl   *template.Template
	index  *query.Index
	report inspect.Report
	log    *zap.SugaredLogger
}

// NewServer indexes rows and registers the routes.
func NewServer(cfg Config, rows []records.Record, log *zap.SugaredLogger) *Server {
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		tmpl:   template.Must(template.New("index").Parse(indexHTML)),
		index:  query.NewIndex(rows),
		report: inspect.Summarize(rows, 0),
		log:    logging.Component(log, "webui"),
	}
	s.routes()
	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Infow("serving artifact", "addr", s.cfg.Addr, logging.FieldRows, s.index.Len())

	select {
	case err := <-errc:
		return errors.Wrap(err, "webui: listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/query", s.handleAPIQuery)
	s.mux.HandleFunc("GET /api/inspect", s.handleAPIInspect)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
}

// lookup parses filter and limit parameters and runs the index.
func (s *Server) lookup(r *http.Request) ([]records.Record, map[string]string, error) {
	q := r.URL.Query()
	var args []string
	for _, f := range q["filter"] {
		if f = strings.TrimSpace(f); f != "" {
			args = append(args, f)
		}
	}
	filters, err := query.ParseFilters(args)
	if err != nil {
		return nil, nil, err
	}

	limit := s.cfg.MaxRows
	if ls := q.Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 0 {
			return nil, nil, errors.Newf("limit %q must be a non-negative integer", ls)
		}
		if limit == 0 || (n > 0 && n < limit) {
			limit = n
		}
	}

	start := time.Now()
	rows := s.index.Lookup(filters)
	metrics.RecordQuery(query.EngineIndex, len(rows))
	s.log.Debugw("query",
		logging.FieldFilters, query.FormatFilters(filters),
		logging.FieldRows, len(rows),
		logging.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, filters, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Filters string
		Rows    []records.Record
		Total   int
		Error   string
		Queried bool
	}{Total: s.index.Len()}

	if r.URL.Query().Has("filter") {
		data.Queried = true
		data.Filters = strings.Join(r.URL.Query()["filter"], "\n")
		// The form sends one textarea; split it into filter arguments.
		q := r.URL.Query()
		q.Del("filter")
		for _, line := range strings.Split(data.Filters, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				q.Add("filter", line)
			}
		}
		r.URL.RawQuery = q.Encode()

		rows, _, err := s.lookup(r)
		if err != nil {
			data.Error = err.Error()
		}
		data.Rows = rows
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.log.Warnw("template error", logging.FieldError, err.Error())
	}
}

func (s *Server) handleAPIQuery(w http.ResponseWriter, r *http.Request) {
	rows, _, err := s.lookup(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			s.log.Warnw("write response", logging.FieldError, err.Error())
			return
		}
	}
}

func (s *Server) handleAPIInspect(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.report)
}

//go:embed index.tmpl.html
var indexHTML string
