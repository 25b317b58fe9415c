package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/watchpost/internal/analysis"
	"github.com/banshee-data/watchpost/internal/db"
	"github.com/banshee-data/watchpost/internal/frames"
	"github.com/banshee-data/watchpost/internal/httputil"
	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/report"
	"github.com/banshee-data/watchpost/internal/version"
)

// ANSI escape codes for request log lines
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultMaxUploadBytes caps a single multipart upload.
const DefaultMaxUploadBytes = 512 << 20

const uploadSuccessMessage = "Video analyzed successfully with local-first incident agent."

// Analyzer runs an uploaded video through the pipeline. *analysis.Service
// implements it.
type Analyzer interface {
	AnalyzeUpload(ctx context.Context, filename string, body io.Reader) (*report.Report, error)
}

// ReportReader reads stored reports. *db.ReportStore implements it.
type ReportReader interface {
	LoadReport(ctx context.Context, id string) (*report.Report, error)
	ListReports(ctx context.Context, limit int) ([]*report.Report, error)
}

// Info describes the deployment on /health and /api/v1/positioning.
type Info struct {
	AppName                string
	Classifier             string
	LatencyTargetMS        float64
	OfflineMode            bool
	VideoNeverLeavesDevice bool
}

type Server struct {
	info           Info
	analyzer       Analyzer
	reports        ReportReader
	chart          report.ChartOptions
	maxUploadBytes int64
}

// Options are the optional Server settings.
type Options struct {
	Chart          report.ChartOptions
	MaxUploadBytes int64
}

func NewServer(info Info, analyzer Analyzer, reports ReportReader, o Options) *Server {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		info:           info,
		analyzer:       analyzer,
		reports:        reports,
		chart:          o.Chart,
		maxUploadBytes: o.MaxUploadBytes,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the public routes. Admin routes are attached separately
// with db.DB.AttachAdminRoutes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/api/v1/positioning", s.positioning)
	mux.HandleFunc("/api/v1/analyze/upload", s.analyzeUpload)
	mux.HandleFunc("/api/v1/reports", s.listReports)
	mux.HandleFunc("/api/v1/reports/{id}", s.getReport)
	mux.HandleFunc("/api/v1/reports/{id}/chart", s.reportChart)
	mux.HandleFunc("/api/v1/reports/{id}/plot.png", s.reportPlot)
	mux.Handle("/metrics", monitoring.MetricsHandler())
	return mux
}

func (s *Server) latencyTarget() string {
	return fmt.Sprintf("<%.0fms", s.info.LatencyTargetMS)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "ok",
		"app":        s.info.AppName,
		"classifier": s.info.Classifier,
		"version":    version.Get(),
		"positioning": map[string]interface{}{
			"emergency_detection_target": s.latencyTarget(),
			"video_never_leaves_device":  s.info.VideoNeverLeavesDevice,
			"offline_capable":            s.info.OfflineMode,
		},
	})
}

func (s *Server) positioning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"statement": s.info.AppName + " is an on-device emergency response agent for sites where " +
			"detection latency must be near zero and video must stay on the device, " +
			"and it keeps detecting and alerting locally without internet access.",
		"critical_requirements": []string{
			"Emergency detection must happen in " + s.latencyTarget(),
			"Video never leaves the device",
			"Works without internet, still detects and alerts locally",
		},
		"primary_use_cases":    []string{"Stores", "Schools", "Public Spaces", "Office"},
		"supported_extensions": frames.SupportedExtensions(),
	})
}

func (s *Server) analyzeUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if r.ContentLength > s.maxUploadBytes {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, "Upload too large.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, "Upload too large.")
			return
		}
		httputil.BadRequest(w, "Missing file.")
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	rep, err := s.analyzer.AnalyzeUpload(r.Context(), header.Filename, file)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"message": uploadSuccessMessage,
		"report":  rep,
	})
}

func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrMissingFilename):
		httputil.BadRequest(w, "Missing filename.")
	case errors.Is(err, frames.ErrUnsupportedFormat):
		httputil.BadRequest(w, "Unsupported file format.")
	case errors.Is(err, analysis.ErrEmptyUpload):
		httputil.BadRequest(w, "Empty upload.")
	case errors.Is(err, analysis.ErrLatencyTargetMissed):
		httputil.ServiceUnavailable(w, fmt.Sprintf(
			"Frame-by-frame latency target not met (%s). Reduce input resolution/fps or increase hardware capacity.",
			s.latencyTarget()))
	default:
		var reqErr *analysis.RequestError
		if errors.As(err, &reqErr) {
			httputil.BadRequest(w, reqErr.Error())
			return
		}
		monitoring.Logf("api: analysis failed: %v", err)
		httputil.InternalServerError(w, "Analysis failed: "+err.Error())
	}
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := db.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	reports, err := s.reports.ListReports(r.Context(), limit)
	if err != nil {
		monitoring.Logf("api: list reports: %v", err)
		reports = []*report.Report{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"reports": reports})
}

// loadReport writes the 404 or 500 itself and returns nil on failure.
func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) *report.Report {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil
	}
	id := r.PathValue("id")
	rep, err := s.reports.LoadReport(r.Context(), id)
	if errors.Is(err, db.ErrReportNotFound) {
		httputil.NotFound(w, "Report not found: "+id)
		return nil
	}
	if err != nil {
		monitoring.Logf("api: load report %s: %v", id, err)
		httputil.InternalServerError(w, "failed to load report")
		return nil
	}
	return rep
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	if rep := s.loadReport(w, r); rep != nil {
		httputil.WriteJSONOK(w, rep)
	}
}

func (s *Server) reportChart(w http.ResponseWriter, r *http.Request) {
	rep := s.loadReport(w, r)
	if rep == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.RenderChart(&buf, rep, s.chart); err != nil {
		monitoring.Logf("api: chart for %s: %v", rep.ID, err)
		httputil.InternalServerError(w, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) reportPlot(w http.ResponseWriter, r *http.Request) {
	rep := s.loadReport(w, r)
	if rep == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.WritePlot(&buf, rep); err != nil {
		if errors.Is(err, report.ErrNoSeries) {
			httputil.NotFound(w, "Report has no signal series: "+rep.ID)
			return
		}
		monitoring.Logf("api: plot for %s: %v", rep.ID, err)
		httputil.InternalServerError(w, "failed to render plot")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}
