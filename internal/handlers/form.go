package handlers

import (
	"embed"
	"encoding/base64"
	"html/template"
	"net/http"

	"github.com/Brownie44l1/describer/internal/describe"
)

//go:embed templates/index.html
var templateFS embed.FS

var formTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type formPage struct {
	Styles        []describe.Style
	Request       describe.Request
	MinLength     int
	MaxLength     int
	LengthStep    int
	MinParagraphs int
	MaxParagraphs int

	Error      string
	ImageURL   template.URL
	HasResult  bool
	Class      int
	Paragraphs []string
}

func newFormPage(req describe.Request) formPage {
	return formPage{
		Styles:        describe.Styles,
		Request:       req,
		MinLength:     describe.MinLength,
		MaxLength:     describe.MaxLength,
		LengthStep:    describe.LengthStep,
		MinParagraphs: describe.MinParagraphs,
		MaxParagraphs: describe.MaxParagraphs,
	}
}

// Form serves the upload form and, on submission, the predicted class and description.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.renderForm(w, http.StatusOK, newFormPage(describe.DefaultRequest()))
	case http.MethodPost:
		h.submitForm(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) submitForm(w http.ResponseWriter, r *http.Request) {
	page := newFormPage(describe.DefaultRequest())

	img, err := h.readUpload(w, r)
	if err != nil {
		page.Error = err.Error()
		h.renderForm(w, statusFor(err), page)
		return
	}
	if img.Format != "" {
		page.ImageURL = template.URL("data:image/" + img.Format + ";base64," + base64.StdEncoding.EncodeToString(img.Data))
	}

	req, err := parseRequest(r)
	if err != nil {
		page.Error = err.Error()
		h.renderForm(w, statusFor(err), page)
		return
	}
	page.Request = req

	ctx, cancel := h.requestContext(r)
	defer cancel()

	result, err := h.describer.Run(ctx, img, req)
	if err != nil {
		if status := statusFor(err); status >= http.StatusInternalServerError {
			h.logger.Error("form submission failed", "err", err)
		}
		page.Error = err.Error()
		page.ImageURL = ""
		h.renderForm(w, statusFor(err), page)
		return
	}

	page.HasResult = true
	page.Class = int(result.Class)
	page.Paragraphs = result.Paragraphs
	h.renderForm(w, http.StatusOK, page)
}

func (h *Handler) renderForm(w http.ResponseWriter, status int, page formPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := formTemplate.Execute(w, page); err != nil {
		h.logger.Error("failed to render form", "err", err)
	}
}
