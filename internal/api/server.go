package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"agriprice/domain/dataset"
	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/insights"
	"agriprice/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
)

// ModelCatalog exposes the trained state of the engine
type ModelCatalog interface {
	IsTrained() bool
	Version() uint64
	ActiveModel() string
	Metrics() []model.ModelMetrics
	ModelMetrics(variant model.Variant) (model.ModelMetrics, error)
	DatasetStats() (dataset.Stats, error)
}

// Predictor serves price estimates
type Predictor interface {
	Predict(ctx context.Context, input model.PredictionInput) (*model.PredictionResult, error)
}

// InsightGenerator builds narrative market reports
type InsightGenerator interface {
	Generate(req insights.Request) (*insights.Report, error)
}

// Dependencies are the collaborators of the public API. Metrics may be nil.
type Dependencies struct {
	Catalog   ModelCatalog
	Predictor Predictor
	Insights  InsightGenerator
	Metrics   *metrics.Collector
	Logger    *internal.Logger
}

// Options configure the HTTP surface
type Options struct {
	AllowedOrigins []string
}

// Server is the public prediction API
type Server struct {
	router  *gin.Engine
	handler http.Handler
	deps    Dependencies
	logger  *internal.Logger
}

var registerValidators sync.Once

// NewServer builds the router and registers the routes. The gin mode is
// taken from the process-wide gin setting.
func NewServer(deps Dependencies, opts Options) *Server {
	registerValidators.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("frequency", func(fl validator.FieldLevel) bool {
				return model.Frequency(fl.Field().String()).Valid()
			})
		}
	})

	s := &Server{
		router: gin.New(),
		deps:   deps,
		logger: deps.Logger.With("API"),
	}

	s.router.Use(gin.Recovery(), s.requestLogger())
	if deps.Metrics != nil {
		s.router.Use(deps.Metrics.GinMiddleware("api"))
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.POST("/predict", s.handlePredict)
		api.GET("/models", s.handleModels)
		api.GET("/models/:variant", s.handleModel)
		api.GET("/insights", s.handleInsights)
		api.GET("/dataset/stats", s.handleDatasetStats)
	}
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns an http.Server for addr serving this API
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
