package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-insights/internal/fiscal"
	"github.com/zombor/receipt-insights/internal/scanning"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, retryable bool) {
	writeJSON(w, status, errorResponse{Error: message, Retryable: retryable})
}

// scanFailure maps a scan error to a status code and a message for display
func scanFailure(err error) (int, string, bool) {
	switch {
	case errors.Is(err, fiscal.ErrInvalidFormat):
		return http.StatusBadRequest, "This QR code is not a fiscal receipt.", false
	case errors.Is(err, fiscal.ErrFetch):
		return http.StatusBadGateway, "Could not download the receipt. Check your connection and try again.", true
	case errors.Is(err, fiscal.ErrExtractionFailed), errors.Is(err, scanning.ErrNoTextFound):
		return http.StatusUnprocessableEntity, "No text could be read from the receipt. Try again with a clearer photo.", true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "The scan was cancelled before it finished.", true
	case errors.Is(err, scanning.ErrOCRUnavailable):
		return http.StatusBadGateway, "The text recognition service is unavailable. Please try again.", true
	}
	return http.StatusInternalServerError, "Something went wrong while scanning. Please try again.", true
}

func writeSaveResult(w http.ResponseWriter, result *SaveResult) {
	status := http.StatusCreated
	if result.Status == StatusDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUploadReceipt scans an uploaded receipt photo
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB. Please compress or resize your image.", false)
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form", false)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.", false)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.", true)
		return
	}

	result, err := s.service.ProcessPhoto(r.Context(), header.Filename, data, uploadContentType(header.Header.Get("Content-Type"), header.Filename))
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		status, message, retryable := scanFailure(err)
		writeError(w, status, message, retryable)
		return
	}
	writeSaveResult(w, result)
}

// uploadContentType falls back to the file extension when the part has no type
func uploadContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleScanQR resolves a scanned fiscal QR code
func (s *Server) handleScanQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Payload) == "" {
		writeError(w, http.StatusBadRequest, "A QR code payload is required.", false)
		return
	}

	result, err := s.service.ProcessQR(r.Context(), req.Payload)
	if err != nil {
		status, message, retryable := scanFailure(err)
		writeError(w, status, message, retryable)
		return
	}
	writeSaveResult(w, result)
}

// handleGetFile serves a stored receipt image
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetFile(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found", false)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

// handleListEntries returns the dataset, newest first
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListEntries()
	if err != nil {
		slog.Error("Error listing entries", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", true)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleClearEntries empties the dataset
func (s *Server) handleClearEntries(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearEntries(); err != nil {
		slog.Error("Error clearing entries", "error", err)
		writeError(w, http.StatusInternalServerError, "Error clearing entries", true)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInsights returns freshly computed analytics
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Insights()
	if err != nil {
		slog.Error("Error computing insights", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", true)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleLatestSummary returns the cached advisor summary
func (s *Server) handleLatestSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.LatestSummary()
	if err != nil {
		slog.Error("Error reading summary", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", true)
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "No summary has been generated yet.", false)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleGenerateSummary builds a fresh advisor summary
func (s *Server) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.GenerateSummary(r.Context())
	if err != nil {
		slog.Error("Error generating summary", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not generate a summary. Please try again.", true)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// handleClearSummary removes the cached summary
func (s *Server) handleClearSummary(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearSummary(); err != nil {
		slog.Error("Error clearing summary", "error", err)
		writeError(w, http.StatusInternalServerError, "Error clearing summary", true)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProfile returns the user profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.service.GetProfile()
	if err != nil {
		slog.Error("Error reading profile", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", true)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleSaveProfile replaces the user profile
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var profile Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", false)
		return
	}

	saved, err := s.service.SaveProfile(profile)
	if errors.Is(err, ErrInvalidProfile) {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}
	if err != nil {
		slog.Error("Error saving profile", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", true)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
