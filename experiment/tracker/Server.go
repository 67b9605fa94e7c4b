package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// Server serves tracked scalars over HTTP while an experiment runs.
//
//	GET /metrics         the most recent value of every scalar
//	GET /keys            the names of all scalars
//	GET /series/<name>   every value logged under name
type Server struct {
	lock   *sync.Mutex
	step   int
	latest map[string]float64
	data   Series

	server *http.Server
}

// NewServer returns a new Server Tracker which listens on addr once
// started
func NewServer(addr string) *Server {
	s := &Server{
		lock:   new(sync.Mutex),
		latest: make(map[string]float64),
		data:   make(Series),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/metrics", s.handleMetrics)
	r.GET("/keys", s.handleKeys)
	r.GET("/series/*name", s.handleSeries)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the HTTP handler of the Server
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts serving in a new goroutine. Serving stops when ctx is
// cancelled or Save is called.
func (s *Server) Start(ctx context.Context) {
	go func() {
		if err := s.server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("tracker server: %v\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Close()
	}()
}

// Track records the scalars
func (s *Server) Track(step int, scalars map[string]float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.step = step
	for k, v := range scalars {
		s.latest[k] = v
	}
	s.data.add(step, scalars)
	return nil
}

// Save stops the Server
func (s *Server) Save() error {
	if err := s.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func (s *Server) handleMetrics(c *gin.Context) {
	s.lock.Lock()
	defer s.lock.Unlock()

	latest := make(map[string]float64, len(s.latest))
	for k, v := range s.latest {
		latest[k] = v
	}
	c.JSON(http.StatusOK, gin.H{"step": s.step, "scalars": latest})
}

func (s *Server) handleKeys(c *gin.Context) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c.JSON(http.StatusOK, gin.H{"keys": s.data.Keys()})
}

func (s *Server) handleSeries(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")

	s.lock.Lock()
	defer s.lock.Unlock()

	points, ok := s.data[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such scalar " + name})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":   name,
		"points": append([]Point(nil), points...),
	})
}
