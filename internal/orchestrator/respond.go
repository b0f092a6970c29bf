package orchestrator

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembler/internal/assembly"
	"github.com/local/pdfassembler/internal/usage"
)

// classify maps an engine error onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case assembly.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case assembly.IsParse(err):
		return http.StatusUnprocessableEntity, "unreadable_file"
	case assembly.IsLimitExceeded(err):
		return http.StatusTooManyRequests, "limit_reached"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(w http.ResponseWriter, err error) {
	code, kind := classify(err)
	body := map[string]any{"error": kind}

	var (
		pe *assembly.ParseError
		le *assembly.LimitExceededError
	)
	switch {
	case errors.As(err, &le):
		body["tool"] = le.Tool
		body["used"] = le.Used
		body["quota"] = le.Quota
	case errors.As(err, &pe):
		body["message"] = err.Error()
		body["file_index"] = pe.Index + 1
		body["file"] = pe.Name
	case code == http.StatusInternalServerError:
		log.Error().Err(err).Msg("request failed")
		body["message"] = "internal error"
	default:
		body["message"] = err.Error()
	}
	writeJSON(w, code, body)
}

// writeArtifacts sends a single artifact as a PDF and several as a ZIP.
func writeArtifacts(w http.ResponseWriter, tool usage.Tool, arts []*assembly.OutputArtifact, at time.Time) {
	if len(arts) == 1 {
		a := arts[0]
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
		w.Header().Set("X-Page-Count", strconv.Itoa(a.Pages))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(a.Data)
		return
	}

	data, err := zipArtifacts(arts)
	if err != nil {
		writeError(w, &assembly.UnexpectedError{Op: "zip artifacts", Err: err})
		return
	}
	name := fmt.Sprintf("%s_%d.zip", tool, at.UnixMilli())
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Artifact-Count", strconv.Itoa(len(arts)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// zipArtifacts stores PDFs without recompression; entries keep caller order.
func zipArtifacts(arts []*assembly.OutputArtifact) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, a := range arts {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: a.Name, Method: zip.Store, Modified: time.Now()})
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(a.Data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
