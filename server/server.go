// Package server is the external HTTP surface glue: ingest, query, and
// the rule/policy admin endpoints, hand-rolled on net/http the way the
// teacher's ais package routes its own daemon endpoints rather than
// pulling in a router library.
package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"

	"github.com/nlevitt/outbackcdx/access"
	"github.com/nlevitt/outbackcdx/cdx"
	"github.com/nlevitt/outbackcdx/ingest"
	"github.com/nlevitt/outbackcdx/metrics"
	"github.com/nlevitt/outbackcdx/store"
	"github.com/nlevitt/outbackcdx/surt"
)

const defaultAccessPoint = "public"

// Server wires the data store, per-collection access stores, and
// metrics together behind the ingest/query/admin HTTP contract.
type Server struct {
	store   *store.Store
	metrics *metrics.Metrics

	accessMu sync.Mutex
	access   map[string]*access.Store
}

// New builds a Server over an already-open store.Store.
func New(st *store.Store, m *metrics.Metrics) *Server {
	return &Server{store: st, metrics: m, access: map[string]*access.Store{}}
}

// Handler returns the http.Handler to mount, e.g. with http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.route)
}

func (s *Server) accessStoreFor(collection string) *access.Store {
	s.accessMu.Lock()
	defer s.accessMu.Unlock()
	if as, ok := s.access[collection]; ok {
		return as
	}
	as, err := access.Open(s.store.Family(collection, store.TagRule), s.store.Family(collection, store.TagPolicy))
	if err != nil {
		// access.Open fails only on a buntdb error or a stored rule or
		// policy that does not decode; Store.Open does not read these
		// families, so this is where such a failure first shows. It is
		// treated as fatal rather than plumbed through every admin
		// handler's error path.
		glog.Fatalf("server: opening access store for %q: %v", collection, err)
	}
	s.access[collection] = as
	return as
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	if path == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(path, "/")
	collection, rest := parts[0], parts[1:]

	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodPost:
			s.handleIngest(w, r, collection)
		case http.MethodGet:
			s.handleQuery(w, r, collection)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case len(rest) >= 2 && rest[0] == "access" && rest[1] == "rules":
		s.handleRules(w, r, collection, rest[2:])
	case len(rest) >= 2 && rest[0] == "access" && rest[1] == "policies":
		s.handlePolicies(w, r, collection, rest[2:])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, collection string) {
	start := time.Now()
	idx, err := s.store.GetIndex(collection, true)
	if err != nil {
		glog.Errorf("server: opening collection %q: %v", collection, err)
		s.metrics.ObserveIngest(collection, "error", 0, 0, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	res, err := ingest.Ingest(idx, r.Body)
	if err != nil {
		if mr, ok := err.(*cdx.MalformedRecord); ok {
			s.metrics.ObserveIngest(collection, "malformed", 0, 0, start)
			http.Error(w, mr.Error(), http.StatusBadRequest)
			return
		}
		glog.Errorf("server: ingesting into %q: %v", collection, err)
		s.metrics.ObserveIngest(collection, "error", 0, 0, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.metrics.ObserveIngest(collection, "ok", res.Added, res.DuplicatesSkipped, start)
	fmt.Fprintf(w, "Added %d records\n", res.Added)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, collection string) {
	start := time.Now()
	idx, err := s.store.GetIndex(collection, false)
	if err != nil {
		glog.Errorf("server: opening collection %q: %v", collection, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if idx == nil {
		s.metrics.ObserveQuery(collection, "not_found", start)
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	urlkey, err := surt.Canonicalize(rawURL)
	if err != nil {
		http.Error(w, "bad url parameter: "+err.Error(), http.StatusBadRequest)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "bad limit parameter", http.StatusBadRequest)
			return
		}
	}

	accessPoint := r.URL.Query().Get("accessPoint")
	if accessPoint == "" {
		accessPoint = defaultAccessPoint
	}
	filter := s.accessStoreFor(collection).Filter(accessPoint, time.Now())

	stream := idx.Query(urlkey)
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	count := 0
	for {
		c, ok, err := stream.Next()
		if err != nil {
			glog.Errorf("server: querying %q: %v", collection, err)
			s.metrics.ObserveQuery(collection, "error", start)
			return
		}
		if !ok {
			break
		}
		if !filter(c) {
			continue
		}
		fmt.Fprintln(w, cdx.ToCDXLine(c))
		count++
		if limit > 0 && count >= limit {
			break
		}
	}
	s.metrics.ObserveQuery(collection, "ok", start)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = jsoniter.NewEncoder(w).Encode(v)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request, collection string, idParts []string) {
	as := s.accessStoreFor(collection)

	switch r.Method {
	case http.MethodGet:
		if surtParam := r.URL.Query().Get("surt"); surtParam != "" {
			writeJSON(w, http.StatusOK, as.RulesForSurt(surtParam))
			return
		}
		http.Error(w, "missing surt parameter", http.StatusBadRequest)
	case http.MethodPost, http.MethodPut:
		var rule access.Rule
		if err := jsoniter.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(idParts) == 1 {
			id, err := strconv.ParseInt(idParts[0], 10, 64)
			if err != nil {
				http.Error(w, "bad rule id", http.StatusBadRequest)
				return
			}
			rule.ID = id
		}
		id, err := as.PutRule(rule)
		if err == access.ErrUnknownPolicy {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			glog.Errorf("server: putting rule in %q: %v", collection, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"id": id})
	case http.MethodDelete:
		if len(idParts) != 1 {
			http.Error(w, "missing rule id", http.StatusBadRequest)
			return
		}
		id, err := strconv.ParseInt(idParts[0], 10, 64)
		if err != nil {
			http.Error(w, "bad rule id", http.StatusBadRequest)
			return
		}
		deleted, err := as.DeleteRule(id)
		if err != nil {
			glog.Errorf("server: deleting rule in %q: %v", collection, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request, collection string, idParts []string) {
	as := s.accessStoreFor(collection)

	switch r.Method {
	case http.MethodGet:
		policies, err := as.ListPolicies()
		if err != nil {
			glog.Errorf("server: listing policies in %q: %v", collection, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, policies)
	case http.MethodPost, http.MethodPut:
		var policy access.Policy
		if err := jsoniter.NewDecoder(r.Body).Decode(&policy); err != nil {
			http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(idParts) == 1 {
			id, err := strconv.ParseInt(idParts[0], 10, 64)
			if err != nil {
				http.Error(w, "bad policy id", http.StatusBadRequest)
				return
			}
			policy.ID = id
		}
		id, err := as.PutPolicy(policy)
		if err != nil {
			glog.Errorf("server: putting policy in %q: %v", collection, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"id": id})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
