package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Brownie44l1/describer/internal/describe"
	"github.com/Brownie44l1/describer/internal/imageproc"
)

// Describer is the pipeline as seen by the presentation layer.
type Describer interface {
	ClassifyImage(ctx context.Context, img describe.UploadedImage) (describe.ClassLabel, error)
	Run(ctx context.Context, img describe.UploadedImage, req describe.Request) (describe.Result, error)
}

type TensorClassifier interface {
	Classify(ctx context.Context, tensor describe.ImageTensor) (describe.ClassLabel, error)
}

type Options struct {
	MaxUploadBytes int64
	// RequestTimeout bounds each pipeline call. Zero means no limit.
	RequestTimeout time.Duration
	// TensorShape is the input shape accepted by /api/scores.
	TensorShape [4]int64
	Logger      *slog.Logger
}

type Handler struct {
	describer  Describer
	classifier TensorClassifier
	opts       Options
	logger     *slog.Logger
}

type apiError struct {
	Error string `json:"error"`
}

type classifyResponse struct {
	Class int `json:"class"`
}

type describeResponse struct {
	Class       int      `json:"class"`
	Description string   `json:"description"`
	Paragraphs  []string `json:"paragraphs"`
}

type scoresRequest struct {
	Tensor []float32 `json:"tensor"`
}

func NewHandler(describer Describer, classifier TensorClassifier, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.TensorShape == [4]int64{} {
		opts.TensorShape = [4]int64{1, 3, imageproc.DefaultSize, imageproc.DefaultSize}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		describer:  describer,
		classifier: classifier,
		opts:       opts,
		logger:     logger,
	}
}

// Routes registers every endpoint on a new mux wrapped in the CORS and logging middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", enableCORS(h.Health))
	mux.HandleFunc("/api/classify", enableCORS(h.Classify))
	mux.HandleFunc("/api/scores", enableCORS(h.Scores))
	mux.HandleFunc("/api/describe", enableCORS(h.Describe))
	mux.HandleFunc("/", h.Form)
	return withLogging(mux, h.logger)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Scores classifies a raw tensor posted as JSON.
func (h *Handler) Scores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read request body"})
		return
	}

	var req scoresRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON"})
		return
	}

	expectedSize := 1
	for _, dim := range h.opts.TensorShape {
		expectedSize *= int(dim)
	}
	if len(req.Tensor) != expectedSize {
		writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("expected %d values, got %d", expectedSize, len(req.Tensor))})
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	class, err := h.classifier.Classify(ctx, describe.ImageTensor{Shape: h.opts.TensorShape, Data: req.Tensor})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{Class: int(class)})
}

// Classify predicts the class of an uploaded image without generating text.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	img, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	class, err := h.describer.ClassifyImage(ctx, img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{Class: int(class)})
}

func (h *Handler) Describe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	img, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := parseRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	result, err := h.describer.Run(ctx, img, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describeResponse{
		Class:       int(result.Class),
		Description: result.Description,
		Paragraphs:  result.Paragraphs,
	})
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.opts.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (describe.UploadedImage, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		return describe.UploadedImage{}, fmt.Errorf("%w: invalid multipart form", describe.ErrInvalidRequest)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return describe.UploadedImage{}, fmt.Errorf("%w: no image file provided, use 'image' as the form field name", describe.ErrInvalidRequest)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return describe.UploadedImage{}, fmt.Errorf("%w: failed to read image", describe.ErrInvalidRequest)
	}

	h.logger.Debug("received file", "file", header.Filename, "size", header.Size)

	return describe.UploadedImage{
		Data:     data,
		Format:   imageproc.Format(header.Filename, header.Header.Get("Content-Type")),
		Filename: header.Filename,
	}, nil
}

// parseRequest reads the generation parameters; absent fields take the form defaults.
func parseRequest(r *http.Request) (describe.Request, error) {
	req := describe.DefaultRequest()

	if raw := strings.TrimSpace(r.FormValue("style")); raw != "" {
		style, err := describe.ParseStyle(raw)
		if err != nil {
			return describe.Request{}, err
		}
		req.Style = style
	}

	var err error
	if req.Length, err = formInt(r, "length", req.Length); err != nil {
		return describe.Request{}, err
	}
	if req.Paragraphs, err = formInt(r, "paragraphs", req.Paragraphs); err != nil {
		return describe.Request{}, err
	}
	return req, req.Validate()
}

func formInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", describe.ErrInvalidRequest, key)
	}
	return value, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, describe.ErrDecode), errors.Is(err, describe.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		h.logger.Info("request canceled", "path", r.URL.Path)
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, apiError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
