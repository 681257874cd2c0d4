// Package httpapi exposes the classifier over HTTP.
package httpapi

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/refset/prevd-classifier/internal/classifier"
	"github.com/refset/prevd-classifier/internal/config"
	"github.com/refset/prevd-classifier/internal/pipeline"
	"github.com/refset/prevd-classifier/internal/store"
)

const defaultRowConcurrency = 4

// RowStore is the persistence used by the review endpoints.
type RowStore interface {
	Override(ctx context.Context, rowID string, label classifier.Label, by string) error
	Rows(ctx context.Context, uploadID string) ([]store.Row, error)
}

// Options configure the server. SampleCount and RowConcurrency are the
// defaults for requests that leave them out; zero means the built-in 3 and 4.
// Store may be nil, which disables the review endpoints.
type Options struct {
	Criteria       classifier.Criteria
	SampleCount    int
	RowConcurrency int
	Store          RowStore
	Logger         *zap.Logger
}

type Server struct {
	pipe           *pipeline.Pipeline
	criteria       classifier.Criteria
	sampleCount    int
	rowConcurrency int
	store          RowStore
	log            *zap.Logger
	router         *gin.Engine
}

// New builds the router
func New(pipe *pipeline.Pipeline, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		pipe:           pipe,
		criteria:       opts.Criteria,
		sampleCount:    config.ClampSampleCount(cmp.Or(opts.SampleCount, classifier.DefaultSampleCount)),
		rowConcurrency: config.ClampRowConcurrency(cmp.Or(opts.RowConcurrency, defaultRowConcurrency)),
		store:          opts.Store,
		log:            log.Named("http"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	api.GET("/meta", s.meta)
	api.POST("/classify", s.classifyUpload)
	api.POST("/classify-row", s.classifyRow)
	if s.store != nil {
		api.GET("/uploads/:id/rows", s.listRows)
		api.POST("/rows/:id/override", s.overrideRow)
	}
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) meta(c *gin.Context) {
	e := s.pipe.Engine()
	c.JSON(http.StatusOK, gin.H{
		"modelName":      e.ModelName(),
		"promptVersion":  e.PromptVersion(),
		"systemCriteria": e.SystemRubric(),
		"labels":         classifier.Labels,
	})
}
