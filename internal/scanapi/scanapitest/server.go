// Package scanapitest provides an in-memory scan API for tests, speaking the same HTTP
// contract as the real server under the /api prefix.
package scanapitest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Server is a fake scan API backed by an in-memory store
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	scans    map[string]map[string]any
	order    []string // most recent first
	gate     chan struct{}
	failures map[string][]int

	requests    sync.Map // route -> *int64
	inflight    int64
	maxInflight int64
	parked      int64
}

// NewServer starts a fake API. Close it with Server.Close.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		scans:    make(map[string]map[string]any),
		failures: make(map[string][]int),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.track())

	api := router.Group("/api")
	api.POST("/scan", s.startScan)
	api.GET("/scan/:id", s.getScan)
	api.GET("/scans", s.listScans)
	api.DELETE("/scan/:id", s.deleteScan)
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "nScanner", "version": "1.0.0"})
	})

	s.Server = httptest.NewServer(router)
	return s
}

// BaseURL is the API root to hand to scanapi.NewClient
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// Put stores a raw payload as-is, in any shape, and makes it the most recent scan
func (s *Server) Put(id string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scans[id]; !ok {
		s.order = append([]string{id}, s.order...)
	}
	s.scans[id] = payload
}

// Update mutates a stored payload in place under the store lock
func (s *Server) Update(id string, fn func(map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.scans[id]; ok {
		fn(p)
	}
}

// Has reports whether id is still stored
func (s *Server) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.scans[id]
	return ok
}

// Hold parks every read (GET /scan/:id and GET /scans) until the returned func is called.
// The response body is taken from the store before parking, so a held response can carry
// data that has since changed.
func (s *Server) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailNext makes the next requests to route ("GET /api/scans", ...) answer with the given codes
func (s *Server) FailNext(route string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], codes...)
}

// Requests counts requests served for route, e.g. "GET /api/scan/:id"
func (s *Server) Requests(route string) int64 {
	if v, ok := s.requests.Load(route); ok {
		return atomic.LoadInt64(v.(*int64))
	}
	return 0
}

// Parked is the number of reads currently held
func (s *Server) Parked() int64 {
	return atomic.LoadInt64(&s.parked)
}

// MaxInflight is the highest number of concurrently served requests observed
func (s *Server) MaxInflight() int64 {
	return atomic.LoadInt64(&s.maxInflight)
}

func (s *Server) track() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.Request.Method + " " + c.FullPath()
		counter, _ := s.requests.LoadOrStore(route, new(int64))
		atomic.AddInt64(counter.(*int64), 1)

		n := atomic.AddInt64(&s.inflight, 1)
		defer atomic.AddInt64(&s.inflight, -1)
		for {
			peak := atomic.LoadInt64(&s.maxInflight)
			if n <= peak || atomic.CompareAndSwapInt64(&s.maxInflight, peak, n) {
				break
			}
		}

		if code, ok := s.popFailure(route); ok {
			c.AbortWithStatusJSON(code, gin.H{"detail": http.StatusText(code)})
			return
		}
		c.Next()
	}
}

func (s *Server) popFailure(route string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.failures[route]
	if len(codes) == 0 {
		return 0, false
	}
	s.failures[route] = codes[1:]
	return codes[0], true
}

func (s *Server) wait(c *gin.Context) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return
	}
	atomic.AddInt64(&s.parked, 1)
	defer atomic.AddInt64(&s.parked, -1)
	select {
	case <-gate:
	case <-c.Request.Context().Done():
	}
}

type startRequest struct {
	Target    string `json:"target"`
	PortRange string `json:"port_range"`
}

func (s *Server) startScan(c *gin.Context) {
	var req startRequest
	_ = c.ShouldBindJSON(&req)
	if req.Target == "" {
		req.Target = c.Query("target")
	}
	if req.PortRange == "" {
		req.PortRange = c.Query("port_range")
	}
	if req.PortRange == "" {
		req.PortRange = "1-1024"
	}

	target := strings.TrimSpace(req.Target)
	if target == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{
			{"loc": []string{"body", "target"}, "msg": "Host or Target is required"},
		}})
		return
	}
	if strings.ContainsAny(target, " <>") || target == "localhost" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid target. Must be a valid domain or public IP address."})
		return
	}

	id := uuid.NewString()
	s.Put(id, map[string]any{
		"id":           id,
		"target":       target,
		"port_range":   req.PortRange,
		"status":       "pending",
		"started_at":   "2025-09-11T13:17:22",
		"completed_at": nil,
		"overall_risk": nil,
		"port_results": []any{},
	})
	c.JSON(http.StatusOK, gin.H{"scan_id": id})
}

func (s *Server) getScan(c *gin.Context) {
	s.mu.Lock()
	p, ok := s.scans[c.Param("id")]
	var out map[string]any
	if ok {
		out = copyMap(p)
	}
	s.mu.Unlock()

	s.wait(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Scan not found"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listScans(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Limit must be between 1 and 100"})
		return
	}

	s.mu.Lock()
	items := make([]gin.H, 0, limit)
	for _, id := range s.order {
		if len(items) == limit {
			break
		}
		p := s.scans[id]
		item := gin.H{}
		for _, k := range []string{"id", "scan_id", "target", "host", "port_range", "ports",
			"status", "started_at", "completed_at", "overall_risk"} {
			if v, ok := p[k]; ok {
				item[k] = v
			}
		}
		items = append(items, item)
	}
	s.mu.Unlock()

	s.wait(c)
	c.JSON(http.StatusOK, gin.H{"scans": items})
}

func (s *Server) deleteScan(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	_, ok := s.scans[id]
	if ok {
		delete(s.scans, id)
		for i, o := range s.order {
			if o == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Scan not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Scan deleted successfully"})
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
