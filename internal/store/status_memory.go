package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memJob struct {
	st      Status
	files   map[int]FileStatus
	expires time.Time
}

// MemoryStatus is the single-process job status store used when Redis is
// not configured.
type MemoryStatus struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStatus(ttl time.Duration) *MemoryStatus {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStatus{jobs: map[string]*memJob{}, ttl: ttl, now: time.Now}
}

func (s *MemoryStatus) job(jobID string) *memJob {
	j, ok := s.jobs[jobID]
	if !ok || s.now().After(j.expires) {
		j = &memJob{files: map[int]FileStatus{}}
		s.jobs[jobID] = j
	}
	j.expires = s.now().Add(s.ttl)
	return j
}

func (s *MemoryStatus) Set(_ context.Context, jobID string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.job(jobID)
	for _, f := range st.Files {
		j.files[f.Index] = f
	}
	st.Files = nil
	j.st = st
	return nil
}

func (s *MemoryStatus) SetFile(_ context.Context, jobID string, index int, name, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job(jobID).files[index] = FileStatus{Index: index, Name: name, State: state}
	return nil
}

func (s *MemoryStatus) Get(_ context.Context, jobID string) (Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || s.now().After(j.expires) {
		return Status{}, false, nil
	}
	st := j.st
	for _, f := range j.files {
		st.Files = append(st.Files, f)
	}
	sort.Slice(st.Files, func(a, b int) bool { return st.Files[a].Index < st.Files[b].Index })
	return st, true, nil
}

// Sweep drops expired jobs.
func (s *MemoryStatus) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if s.now().After(j.expires) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}
