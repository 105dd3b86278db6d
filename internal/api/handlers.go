package api

import (
	"net/http"
	"time"

	"agriprice/domain/model"
	"agriprice/internal/errors"
	"agriprice/internal/insights"

	"github.com/gin-gonic/gin"
)

// PredictRequest is the body of POST /api/predict. Missing environmental
// readings are back-filled from history.
type PredictRequest struct {
	Year        int      `json:"year" binding:"required,min=1900,max=2200"`
	Month       int      `json:"month" binding:"required,min=1,max=12"`
	City        string   `json:"city" binding:"required"`
	Variety     string   `json:"variety" binding:"required"`
	Frequency   string   `json:"frequency" binding:"omitempty,frequency"`
	Rainfall    *float64 `json:"rainfall"`
	Arrivals    *float64 `json:"arrivals"`
	Temperature *float64 `json:"temperature"`
}

func (r PredictRequest) input() model.PredictionInput {
	return model.PredictionInput{
		Year:        r.Year,
		Month:       r.Month,
		City:        r.City,
		Variety:     r.Variety,
		Frequency:   model.Frequency(r.Frequency),
		Rainfall:    r.Rainfall,
		Arrivals:    r.Arrivals,
		Temperature: r.Temperature,
	}
}

// PredictResponse adds the serving model's quality figures to a prediction
type PredictResponse struct {
	model.PredictionResult
	Accuracy  float64   `json:"accuracy"`
	MAE       float64   `json:"mae"`
	R2Score   *float64  `json:"r2_score"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelPerformance is one entry of GET /api/models
type ModelPerformance struct {
	model.ModelMetrics
	TrainingSamples int  `json:"training_samples"`
	Active          bool `json:"active"`
}

// HealthResponse reports whether trained models are serving
type HealthResponse struct {
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	ModelsLoaded []string  `json:"models_loaded"`
	ActiveModel  string    `json:"active_model,omitempty"`
	Version      uint64    `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

type insightsQuery struct {
	City    string `form:"city"`
	Variety string `form:"variety"`
	Month   int    `form:"month" binding:"omitempty,min=1,max=12"`
	Year    int    `form:"year" binding:"omitempty,min=1900,max=2200"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Chilli price prediction API",
		"status":  "running",
		"health":  "/health",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:       "degraded",
		Message:      "models are training",
		ModelsLoaded: []string{},
		Version:      s.deps.Catalog.Version(),
		Timestamp:    time.Now().UTC(),
	}
	if s.deps.Catalog.IsTrained() {
		resp.Status = "healthy"
		resp.Message = "API is running"
		resp.ActiveModel = s.deps.Catalog.ActiveModel()
		for _, m := range s.deps.Catalog.Metrics() {
			resp.ModelsLoaded = append(resp.ModelsLoaded, m.Name)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "invalid prediction request")))
		return
	}

	result, err := s.deps.Predictor.Predict(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := PredictResponse{PredictionResult: *result, Timestamp: time.Now().UTC()}
	for _, m := range s.deps.Catalog.Metrics() {
		if m.Name != result.Model {
			continue
		}
		resp.Accuracy = m.Accuracy
		resp.MAE = m.MAE
		if m.R2Defined {
			r2 := m.R2Score
			resp.R2Score = &r2
		}
		break
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleModels(c *gin.Context) {
	if !s.deps.Catalog.IsTrained() {
		respondError(c, errors.NotTrained("models are still training, try again shortly"))
		return
	}

	samples := 0
	if stats, err := s.deps.Catalog.DatasetStats(); err == nil {
		samples = stats.TotalSamples
	}
	active := s.deps.Catalog.ActiveModel()

	metrics := s.deps.Catalog.Metrics()
	out := make([]ModelPerformance, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, ModelPerformance{ModelMetrics: m, TrainingSamples: samples, Active: m.Name == active})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleModel(c *gin.Context) {
	m, err := s.deps.Catalog.ModelMetrics(model.Variant(c.Param("variant")))
	if err != nil {
		respondError(c, err)
		return
	}
	if !m.Trained {
		respondError(c, errors.NotTrained("models are still training, try again shortly"))
		return
	}

	samples := 0
	if stats, err := s.deps.Catalog.DatasetStats(); err == nil {
		samples = stats.TotalSamples
	}
	c.JSON(http.StatusOK, ModelPerformance{
		ModelMetrics:    m,
		TrainingSamples: samples,
		Active:          m.Name == s.deps.Catalog.ActiveModel(),
	})
}

func (s *Server) handleInsights(c *gin.Context) {
	var q insightsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "invalid insights query")))
		return
	}
	req := insights.Request{City: q.City, Variety: q.Variety, Month: q.Month, Year: q.Year}
	if req.City == "" {
		req.City = "Bangalore"
	}
	if req.Variety == "" {
		req.Variety = "Guntur"
	}
	if req.Month == 0 {
		req.Month = int(time.Now().Month())
	}

	report, err := s.deps.Insights.Generate(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleDatasetStats(c *gin.Context) {
	stats, err := s.deps.Catalog.DatasetStats()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
