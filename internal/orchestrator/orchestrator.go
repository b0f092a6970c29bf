package orchestrator

import (
    "context"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/pdfassembler/internal/assembly"
    "github.com/local/pdfassembler/internal/metrics"
    "github.com/local/pdfassembler/internal/statuscheck"
    "github.com/local/pdfassembler/internal/storage"
    "github.com/local/pdfassembler/internal/store"
    "github.com/local/pdfassembler/internal/usage"
)

// Engine is the gated assembly engine as seen by the HTTP layer.
type Engine interface {
    Merge(ctx context.Context, req assembly.Request, files []assembly.SourceFile) (*assembly.OutputArtifact, error)
    SplitRange(ctx context.Context, req assembly.Request, file assembly.SourceFile, start, end int) (*assembly.OutputArtifact, error)
    SplitSingles(ctx context.Context, req assembly.Request, file assembly.SourceFile, pages []int) ([]*assembly.OutputArtifact, error)
    SplitBulk(ctx context.Context, req assembly.Request, file assembly.SourceFile, chunkSize int) ([]*assembly.OutputArtifact, error)
    ComposeImages(ctx context.Context, req assembly.Request, files []assembly.SourceFile, layout assembly.LayoutPolicy) (*assembly.OutputArtifact, error)
    Check(ctx context.Context, tool usage.Tool, caller usage.Caller) (usage.Decision, error)
}

type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    SetFile(ctx context.Context, jobID string, index int, name, state string) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

// Limits holds request-level settings.
type Limits struct {
    MaxMemoryBytes int64 // multipart bytes kept in memory before spilling to disk
    TrustProxy     bool
    PreviewDPI     float64
    PreviewMaxDPI  float64
    RelaxedPDF     bool
}

type Dependencies struct {
    Engine Engine
    Status StatusStore
    Sink   storage.Sink // optional
    Guard  *usage.InflightGuard
    Health *statuscheck.Checker
    Limits Limits
}

type Orchestrator struct {
    deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
    if deps.Status == nil { deps.Status = store.NewMemoryStatus(0) }
    if deps.Guard == nil { deps.Guard = usage.NewInflightGuard(1) }
    if deps.Limits.MaxMemoryBytes <= 0 { deps.Limits.MaxMemoryBytes = 64 << 20 }
    if deps.Limits.PreviewDPI <= 0 { deps.Limits.PreviewDPI = 72 }
    if deps.Limits.PreviewMaxDPI <= 0 { deps.Limits.PreviewMaxDPI = 200 }
    return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request){ w.WriteHeader(http.StatusOK); _,_ = w.Write([]byte("ok")) })
    mux.HandleFunc("/status", o.handleStatus)
    mux.HandleFunc("/v1/merge", o.handleMerge)
    mux.HandleFunc("/v1/split/range", o.handleSplitRange)
    mux.HandleFunc("/v1/split/pages", o.handleSplitPages)
    mux.HandleFunc("/v1/split/bulk", o.handleSplitBulk)
    mux.HandleFunc("/v1/images", o.handleImages)
    mux.HandleFunc("/v1/inspect", o.handleInspect)
    mux.HandleFunc("/v1/preview", o.handlePreview)
    mux.HandleFunc("/v1/usage/", o.handleUsage)
    mux.HandleFunc("/progress/", o.handleProgress)
}

func (o *Orchestrator) handleMerge(w http.ResponseWriter, r *http.Request) {
    form, ok := o.parseForm(w, r)
    if !ok { return }
    files, err := form.files("files")
    if err != nil { writeError(w, err); return }
    o.runJob(w, r, usage.ToolMerge, files, func(ctx context.Context, req assembly.Request) ([]*assembly.OutputArtifact, error) {
        art, err := o.deps.Engine.Merge(ctx, req, files)
        return single(art, err)
    })
}

func (o *Orchestrator) handleSplitRange(w http.ResponseWriter, r *http.Request) {
    form, ok := o.parseForm(w, r)
    if !ok { return }
    file, err := form.file("file")
    if err != nil { writeError(w, err); return }
    start, err := form.intValue("start")
    if err != nil { writeError(w, err); return }
    end, err := form.intValue("end")
    if err != nil { writeError(w, err); return }
    o.runJob(w, r, usage.ToolSplit, []assembly.SourceFile{file}, func(ctx context.Context, req assembly.Request) ([]*assembly.OutputArtifact, error) {
        art, err := o.deps.Engine.SplitRange(ctx, req, file, start, end)
        return single(art, err)
    })
}

func (o *Orchestrator) handleSplitPages(w http.ResponseWriter, r *http.Request) {
    form, ok := o.parseForm(w, r)
    if !ok { return }
    file, err := form.file("file")
    if err != nil { writeError(w, err); return }
    pages := assembly.ParsePageList(form.value("pages"))
    o.runJob(w, r, usage.ToolSplit, []assembly.SourceFile{file}, func(ctx context.Context, req assembly.Request) ([]*assembly.OutputArtifact, error) {
        return o.deps.Engine.SplitSingles(ctx, req, file, pages)
    })
}

func (o *Orchestrator) handleSplitBulk(w http.ResponseWriter, r *http.Request) {
    form, ok := o.parseForm(w, r)
    if !ok { return }
    file, err := form.file("file")
    if err != nil { writeError(w, err); return }
    chunk, err := form.intValue("chunk_size")
    if err != nil { writeError(w, err); return }
    o.runJob(w, r, usage.ToolSplit, []assembly.SourceFile{file}, func(ctx context.Context, req assembly.Request) ([]*assembly.OutputArtifact, error) {
        return o.deps.Engine.SplitBulk(ctx, req, file, chunk)
    })
}

func (o *Orchestrator) handleImages(w http.ResponseWriter, r *http.Request) {
    form, ok := o.parseForm(w, r)
    if !ok { return }
    files, err := form.files("files")
    if err != nil { writeError(w, err); return }
    layout, err := assembly.ParseLayout(form.value("layout"), form.value("orientation"))
    if err != nil { writeError(w, err); return }
    o.runJob(w, r, usage.ToolImages, files, func(ctx context.Context, req assembly.Request) ([]*assembly.OutputArtifact, error) {
        art, err := o.deps.Engine.ComposeImages(ctx, req, files, layout)
        return single(art, err)
    })
}

type jobFunc func(ctx context.Context, req assembly.Request) ([]*assembly.OutputArtifact, error)

// runJob executes one gated operation synchronously. Once started, a job is
// not cancelled when the client goes away.
func (o *Orchestrator) runJob(w http.ResponseWriter, r *http.Request, tool usage.Tool, files []assembly.SourceFile, fn jobFunc) {
    caller := identifyCaller(r, o.deps.Limits.TrustProxy)
    release, ok := o.deps.Guard.Allow(tool, caller.ID)
    if !ok {
        writeJSON(w, http.StatusConflict, map[string]any{"error": "job_in_progress", "message": "another " + tool.String() + " job is still running"})
        return
    }
    defer release()

    jobID := uuid.NewString()
    w.Header().Set("X-Job-ID", jobID)
    ctx := context.WithoutCancel(r.Context())

    start := time.Now()
    fileStates := make([]store.FileStatus, len(files))
    for i, f := range files {
        fileStates[i] = store.FileStatus{Index: i, Name: f.Name, State: string(assembly.StateReady)}
    }
    meta := map[string]any{"tool": tool.String(), "caller": caller.ID, "files": len(files)}
    o.setStatus(ctx, jobID, store.Status{Status: "processing", Message: "processing", Start: &start, Metadata: meta, Files: fileStates})
    log.Info().Str("job_id", jobID).Str("tool", tool.String()).Str("caller", caller.ID).Int("files", len(files)).Msg("job created")

    arts, err := fn(ctx, assembly.Request{JobID: jobID, Caller: caller, Progress: &statusTracker{store: o.deps.Status, jobID: jobID}})
    end := time.Now()
    if err != nil {
        code, _ := classify(err)
        meta["http_status"] = code
        o.setStatus(ctx, jobID, store.Status{Status: "failed", Message: err.Error(), Start: &start, End: &end, Metadata: meta})
        writeError(w, err)
        return
    }

    names := make([]string, len(arts))
    for i, a := range arts {
        names[i] = a.Name
    }
    meta["artifacts"] = names
    if locations := o.publish(ctx, jobID, arts); len(locations) > 0 {
        meta["locations"] = locations
    }
    o.setStatus(ctx, jobID, store.Status{Status: "success", Progress: 100, Message: "completed", Start: &start, End: &end, Metadata: meta})
    writeArtifacts(w, tool, arts, end)
}

// publish hands artifacts to the configured sink. Failures are logged and
// never fail the job.
func (o *Orchestrator) publish(ctx context.Context, jobID string, arts []*assembly.OutputArtifact) []string {
    if o.deps.Sink == nil { return nil }
    var locations []string
    for _, a := range arts {
        loc, err := o.deps.Sink.Publish(ctx, jobID, a.Name, a.Data)
        metrics.IncPublished(o.deps.Sink.Name(), err == nil)
        if err != nil {
            log.Warn().Err(err).Str("job_id", jobID).Str("artifact", a.Name).Str("sink", o.deps.Sink.Name()).Msg("artifact publication failed")
            continue
        }
        locations = append(locations, loc)
    }
    return locations
}

func (o *Orchestrator) setStatus(ctx context.Context, jobID string, st store.Status) {
    if err := o.deps.Status.Set(ctx, jobID, st); err != nil {
        log.Warn().Err(err).Str("job_id", jobID).Msg("status update failed")
    }
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/progress/")
    if id == "" { http.Error(w, "missing job id", http.StatusBadRequest); return }
    st, ok, err := o.deps.Status.Get(r.Context(), id)
    if err != nil { http.Error(w, "error", 500); return }
    if !ok {
        http.Error(w, "not found", http.StatusNotFound); return
    }
    if st.Status == "processing" && len(st.Files) > 0 {
        done := 0
        for _, f := range st.Files {
            if f.State == string(assembly.StateCompleted) { done++ }
        }
        st.Progress = done * 100 / len(st.Files)
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "success":    st.Status == "success",
        "job_id":     id,
        "status":     st.Status,
        "progress":   st.Progress,
        "message":    st.Message,
        "start_time": st.Start,
        "end_time":   st.End,
        "files":      st.Files,
        "metadata":   st.Metadata,
    })
}

func (o *Orchestrator) handleUsage(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    tool, ok := usage.ParseTool(strings.TrimPrefix(r.URL.Path, "/v1/usage/"))
    if !ok { http.Error(w, "unknown tool", http.StatusNotFound); return }
    caller := identifyCaller(r, o.deps.Limits.TrustProxy)
    d, err := o.deps.Engine.Check(r.Context(), tool, caller)
    if err != nil {
        log.Error().Err(err).Str("tool", tool.String()).Msg("usage check failed")
        writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "tool":      tool.String(),
        "used":      d.Used,
        "quota":     d.Quota,
        "remaining": d.Remaining(),
        "allowed":   d.Allowed,
        "unlimited": caller.Unlimited,
    })
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
    if o.deps.Health == nil {
        writeJSON(w, http.StatusOK, map[string]any{"ready": true})
        return
    }
    sum := o.deps.Health.Summary(r.Context())
    code := http.StatusOK
    if !sum.Ready() { code = http.StatusServiceUnavailable }
    writeJSON(w, code, map[string]any{"ready": sum.Ready(), "checks": sum})
}

// statusTracker mirrors per-file progress into the status store.
type statusTracker struct {
    store StatusStore
    jobID string
}

func (t *statusTracker) Track(ctx context.Context, index int, name string, state assembly.FileState) {
    if err := t.store.SetFile(ctx, t.jobID, index, name, string(state)); err != nil {
        log.Warn().Err(err).Str("job_id", t.jobID).Int("index", index).Msg("progress update failed")
    }
}

func single(art *assembly.OutputArtifact, err error) ([]*assembly.OutputArtifact, error) {
    if err != nil { return nil, err }
    return []*assembly.OutputArtifact{art}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}
