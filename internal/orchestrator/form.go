package orchestrator

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/local/pdfassembler/internal/assembly"
)

// uploadForm wraps a parsed multipart request. Missing or malformed fields
// surface as assembly.ValidationError so they map to 400 like any other
// invalid parameter.
type uploadForm struct {
	r *http.Request
}

func (o *Orchestrator) parseForm(w http.ResponseWriter, r *http.Request) (*uploadForm, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}
	if err := r.ParseMultipartForm(o.deps.Limits.MaxMemoryBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request", "message": "invalid multipart form"})
		return nil, false
	}
	return &uploadForm{r: r}, true
}

func (f *uploadForm) value(key string) string {
	return strings.TrimSpace(f.r.FormValue(key))
}

func (f *uploadForm) intValue(key string) (int, error) {
	s := f.value(key)
	if s == "" {
		return 0, &assembly.ValidationError{Field: key, Message: "is required"}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &assembly.ValidationError{Field: key, Message: fmt.Sprintf("%q is not an integer", s)}
	}
	return n, nil
}

// files reads every part named key, in the order the client sent them.
func (f *uploadForm) files(key string) ([]assembly.SourceFile, error) {
	var headers []*multipart.FileHeader
	if f.r.MultipartForm != nil {
		headers = f.r.MultipartForm.File[key]
	}
	if len(headers) == 0 {
		return nil, &assembly.ValidationError{Field: key, Message: "no files uploaded"}
	}
	out := make([]assembly.SourceFile, 0, len(headers))
	for i, h := range headers {
		data, err := readPart(h)
		if err != nil {
			return nil, &assembly.ParseError{Index: i, Name: h.Filename, Err: err}
		}
		out = append(out, assembly.SourceFile{Name: partName(h, i), Data: data})
	}
	return out, nil
}

func (f *uploadForm) file(key string) (assembly.SourceFile, error) {
	files, err := f.files(key)
	if err != nil {
		return assembly.SourceFile{}, err
	}
	if len(files) != 1 {
		return assembly.SourceFile{}, &assembly.ValidationError{Field: key, Message: fmt.Sprintf("expected exactly one file, got %d", len(files))}
	}
	return files[0], nil
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	rc, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func partName(h *multipart.FileHeader, i int) string {
	if h.Filename != "" {
		return h.Filename
	}
	return fmt.Sprintf("file_%d", i+1)
}
