package orchestrator

import (
    "bytes"
    "errors"
    "fmt"
    "image"
    "net/http"
    "strconv"

    "github.com/pdfcpu/pdfcpu/pkg/api"
    "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
    "github.com/rs/zerolog/log"

    "github.com/local/pdfassembler/internal/assembly"
    "github.com/local/pdfassembler/internal/filetype"
    "github.com/local/pdfassembler/internal/imagerender"
)

var detector = filetype.New()

type pageSize struct {
    Width  float64 `json:"width"`
    Height float64 `json:"height"`
}

type inspectResp struct {
    Name      string     `json:"name"`
    MIME      string     `json:"mime"`
    Kind      string     `json:"kind"`
    Supported bool       `json:"supported"`
    Size      int        `json:"size"`
    Pages     int        `json:"pages"`
    PageSizes []pageSize `json:"page_sizes,omitempty"`
    Width     int        `json:"width,omitempty"`
    Height    int        `json:"height,omitempty"`
}

// handleInspect reports type and page count of an upload so a client can
// validate ranges before submitting a job. It is not metered.
func (o *Orchestrator) handleInspect(w http.ResponseWriter, r *http.Request) {
    form, ok := o.parseForm(w, r)
    if !ok { return }
    file, err := form.file("file")
    if err != nil { writeError(w, err); return }

    info := detector.DetectBytes(file.Data)
    resp := inspectResp{Name: file.Name, MIME: info.MIMEType, Kind: info.Kind.String(), Supported: info.Supported, Size: len(file.Data)}

    switch {
    case info.Kind == filetype.KindPDF:
        dims, err := pdfPageDims(file.Data, o.deps.Limits.RelaxedPDF)
        if err != nil {
            writeError(w, &assembly.ParseError{Index: 0, Name: file.Name, Err: err}); return
        }
        resp.Pages = len(dims)
        resp.PageSizes = dims
    case info.Kind.IsImage():
        cfg, _, err := image.DecodeConfig(bytes.NewReader(file.Data))
        if err != nil {
            writeError(w, &assembly.ParseError{Index: 0, Name: file.Name, Err: err}); return
        }
        resp.Pages = 1
        resp.Width, resp.Height = cfg.Width, cfg.Height
    }
    writeJSON(w, http.StatusOK, resp)
}

func pdfPageDims(data []byte, relaxed bool) (dims []pageSize, err error) {
    defer func() {
        if rec := recover(); rec != nil { err = fmt.Errorf("recovered panic: %v", rec) }
    }()
    conf := model.NewDefaultConfiguration()
    if relaxed { conf.ValidationMode = model.ValidationRelaxed }
    ds, err := api.PageDims(bytes.NewReader(data), conf)
    if err != nil { return nil, fmt.Errorf("pdf page dimensions failed: %w", err) }
    dims = make([]pageSize, len(ds))
    for i, d := range ds {
        dims[i] = pageSize{Width: d.Width, Height: d.Height}
    }
    return dims, nil
}

// handlePreview renders one page as a JPEG thumbnail for drag-reorder views.
func (o *Orchestrator) handlePreview(w http.ResponseWriter, r *http.Request) {
    form, ok := o.parseForm(w, r)
    if !ok { return }
    file, err := form.file("file")
    if err != nil { writeError(w, err); return }

    page := 1
    if form.value("page") != "" {
        if page, err = form.intValue("page"); err != nil { writeError(w, err); return }
    }
    dpi := o.deps.Limits.PreviewDPI
    if s := form.value("dpi"); s != "" {
        v, err := strconv.ParseFloat(s, 64)
        if err != nil || v <= 0 {
            writeError(w, &assembly.ValidationError{Field: "dpi", Message: "must be a positive number"}); return
        }
        dpi = min(v, o.deps.Limits.PreviewMaxDPI)
    }
    mode := imagerender.ColorRGB
    if form.value("color") == string(imagerender.ColorGray) { mode = imagerender.ColorGray }

    if info := detector.DetectBytes(file.Data); info.Kind != filetype.KindPDF {
        writeError(w, &assembly.ParseError{Index: 0, Name: file.Name, Err: fmt.Errorf("not a PDF (%s)", info.MIMEType)}); return
    }
    prev, err := imagerender.RenderPreview(file.Data, page, dpi, 80, mode)
    if err != nil {
        if errors.Is(err, imagerender.ErrPageOutOfRange) {
            writeError(w, &assembly.ValidationError{Field: "page", Message: err.Error()}); return
        }
        log.Warn().Err(err).Str("file", file.Name).Int("page", page).Msg("preview failed")
        writeError(w, &assembly.ParseError{Index: 0, Name: file.Name, Err: err}); return
    }
    w.Header().Set("Content-Type", "image/jpeg")
    w.Header().Set("X-Page-Count", strconv.Itoa(prev.Pages))
    w.Header().Set("X-Image-Width", strconv.Itoa(prev.Width))
    w.Header().Set("X-Image-Height", strconv.Itoa(prev.Height))
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(prev.JPEG)
}
