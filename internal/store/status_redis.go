package store

import (
    "context"
    "encoding/json"
    "fmt"
    "sort"
    "strconv"
    "strings"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// FileStatus is the progress of one source file within a job.
type FileStatus struct {
    Index int    `json:"index"`
    Name  string `json:"name"`
    State string `json:"state"`
}

type Status struct {
    Status   string                 `json:"status"`
    Progress int                    `json:"progress"`
    Message  string                 `json:"message"`
    Start    *time.Time             `json:"start_time,omitempty"`
    End      *time.Time             `json:"end_time,omitempty"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
    Files    []FileStatus           `json:"files,omitempty"`
}

// RedisStatus keeps one hash per job: the overall fields plus
// file:<i>:name / file:<i>:state per source file.
type RedisStatus struct {
    client redis.UniversalClient
    keyNS  string
    ttl    time.Duration
}

func NewRedisStatus(client redis.UniversalClient, ttl time.Duration) *RedisStatus {
    if ttl <= 0 { ttl = 24 * time.Hour }
    return &RedisStatus{client: client, keyNS: "job", ttl: ttl}
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
    m := map[string]interface{}{
        "status":   st.Status,
        "progress": st.Progress,
        "message":  st.Message,
    }
    if st.Start != nil { m["start"] = st.Start.Format(time.RFC3339Nano) }
    if st.End != nil { m["end"] = st.End.Format(time.RFC3339Nano) }
    if st.Metadata != nil {
        b, _ := json.Marshal(st.Metadata)
        m["metadata"] = string(b)
    }
    for _, f := range st.Files {
        m[fileField(f.Index, "name")] = f.Name
        m[fileField(f.Index, "state")] = f.State
    }
    return s.write(ctx, jobID, m)
}

// SetFile updates the state of one source file.
func (s *RedisStatus) SetFile(ctx context.Context, jobID string, index int, name, state string) error {
    return s.write(ctx, jobID, map[string]interface{}{
        fileField(index, "name"):  name,
        fileField(index, "state"): state,
    })
}

func (s *RedisStatus) write(ctx context.Context, jobID string, m map[string]interface{}) error {
    k := s.key(jobID)
    pipe := s.client.TxPipeline()
    pipe.HSet(ctx, k, m)
    pipe.Expire(ctx, k, s.ttl)
    _, err := pipe.Exec(ctx)
    return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
    if err != nil { return Status{}, false, err }
    if len(res) == 0 { return Status{}, false, nil }
    st := Status{}
    st.Status = res["status"]
    st.Message = res["message"]
    if p, ok := res["progress"]; ok && p != "" {
        // ignore parse error; default 0
        st.Progress, _ = strconv.Atoi(p)
    }
    if v := res["start"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.Start = &t }
    }
    if v := res["end"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.End = &t }
    }
    if v := res["metadata"]; v != "" {
        _ = json.Unmarshal([]byte(v), &st.Metadata)
    }
    st.Files = filesFromHash(res)
    return st, true, nil
}

func fileField(index int, attr string) string { return "file:" + strconv.Itoa(index) + ":" + attr }

func filesFromHash(res map[string]string) []FileStatus {
    byIndex := map[int]*FileStatus{}
    for k, v := range res {
        parts := strings.Split(k, ":")
        if len(parts) != 3 || parts[0] != "file" { continue }
        idx, err := strconv.Atoi(parts[1])
        if err != nil { continue }
        f, ok := byIndex[idx]
        if !ok {
            f = &FileStatus{Index: idx}
            byIndex[idx] = f
        }
        switch parts[2] {
        case "name":
            f.Name = v
        case "state":
            f.State = v
        }
    }
    files := make([]FileStatus, 0, len(byIndex))
    for _, f := range byIndex {
        files = append(files, *f)
    }
    sort.Slice(files, func(i, j int) bool { return files[i].Index < files[j].Index })
    if len(files) == 0 { return nil }
    return files
}
