package usage

import (
    "strings"
    "sync"
)

// InflightGuard limits how many operations a caller may have running per
// tool on this process.
type InflightGuard struct {
    maxInflight int
    mu          sync.Mutex
    sem         map[string]chan struct{}
}

func NewInflightGuard(maxInflight int) *InflightGuard {
    if maxInflight <= 0 { maxInflight = 1 }
    return &InflightGuard{maxInflight: maxInflight, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a slot for tool:caller.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (g *InflightGuard) Allow(tool Tool, callerID string) (func(), bool) {
    key := tool.String() + ":" + strings.ToLower(callerID)
    g.mu.Lock()
    defer g.mu.Unlock()
    ch, ok := g.sem[key]
    if !ok {
        ch = make(chan struct{}, g.maxInflight)
        g.sem[key] = ch
    }
    select {
    case ch <- struct{}{}:
        var once sync.Once
        return func() { once.Do(func() { g.release(key, ch) }) }, true
    default:
        return func() {}, false
    }
}

// release frees the slot and drops idle semaphores so the map does not grow
// with every anonymous caller.
func (g *InflightGuard) release(key string, ch chan struct{}) {
    g.mu.Lock()
    defer g.mu.Unlock()
    <-ch
    if len(ch) == 0 && g.sem[key] == ch {
        delete(g.sem, key)
    }
}
