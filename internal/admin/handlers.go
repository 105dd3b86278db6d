package admin

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"agriprice/adapters/excel"
	"agriprice/app"
	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/internal/errors"
	"agriprice/internal/insights"

	"github.com/go-chi/chi/v5"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// TrainingStatusResponse is the body of GET /admin/training-status
type TrainingStatusResponse struct {
	app.TrainingState
	NextScheduledRun *time.Time `json:"next_scheduled_run,omitempty"`
}

func (a *App) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	resp := TrainingStatusResponse{TrainingState: a.deps.Trainer.Status()}
	if a.deps.Schedule != nil {
		next := a.deps.Schedule.Next()
		resp.NextScheduledRun = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Trainer.Start(a.base); err != nil {
		writeError(w, err)
		return
	}
	a.logger.Info("Retrain requested by %s", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, a.deps.Trainer.Status())
}

func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, errors.InvalidInput(fmt.Sprintf("limit %q must be a positive integer", raw)))
			return
		}
		limit = n
	}

	runs, err := a.deps.Trainer.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	run, err := a.deps.Trainer.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

const maxUploadBytes = 32 << 20

// DatasetUploadResponse is the body of POST /admin/dataset
type DatasetUploadResponse struct {
	Filename string           `json:"filename"`
	Samples  int              `json:"samples"`
	Training app.TrainingState `json:"training"`
}

// handleDatasetUpload replaces the training observations with a CSV or XLSX
// file sent as the multipart field "file" and starts a retrain. The whole
// file is rejected when any row is invalid.
func (a *App) handleDatasetUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.InvalidInput(fmt.Sprintf("multipart field \"file\" is required: %v", err)))
		return
	}
	defer file.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	format, err := excel.ParseFormat(ext)
	if ext == "" || err != nil {
		writeError(w, errors.InvalidInput(fmt.Sprintf("%q is not a .csv or .xlsx file", header.Filename)))
		return
	}

	tmp, err := os.CreateTemp("", "agriprice-upload-*."+string(format))
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to stage upload"))
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to stage upload"))
		return
	}

	observations, err := excel.NewDataReader(tmp.Name(), dataset.DefaultBounds(), a.logger).LoadObservations(r.Context())
	if err != nil {
		writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	if err := a.deps.Trainer.ReplaceDataset(a.base, observations, "upload"); err != nil {
		writeError(w, err)
		return
	}

	a.logger.Info("Accepted %s with %d observations from %s", header.Filename, len(observations), r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, DatasetUploadResponse{
		Filename: header.Filename,
		Samples:  len(observations),
		Training: a.deps.Trainer.Status(),
	})
}

func (a *App) handleDatasetExport(w http.ResponseWriter, r *http.Request) {
	format, err := excel.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}

	observations, err := a.deps.Source.LoadObservations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	// headers are committed on the first write
	var buf bytes.Buffer
	if err := excel.Write(&buf, format, observations); err != nil {
		writeError(w, errors.Wrap(err, "failed to encode dataset"))
		return
	}

	filename := fmt.Sprintf("observations-%s.%s", time.Now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
	a.logger.Info("Exported %d observations as %s", len(observations), format)
}

func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	summary := insights.ModelSummary{
		GeneratedAt: time.Now(),
		ActiveModel: a.deps.Catalog.ActiveModel(),
		Version:     a.deps.Catalog.Version(),
		Metrics:     a.deps.Catalog.Metrics(),
	}
	if stats, err := a.deps.Catalog.DatasetStats(); err == nil {
		summary.Dataset = stats
	}
	if runs, err := a.deps.Trainer.Runs(r.Context(), 10); err == nil {
		summary.Runs = runs
	} else {
		a.logger.Warn("Report rendered without run history: %v", err)
	}

	md := insights.ModelReport(summary)
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(md))
		return
	}

	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Model Performance Report",
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(markdown.ToHTML([]byte(md), p, renderer))
}
