package statuscheck

import (
    "context"
    "errors"
    "time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
    Ping(ctx context.Context) error
}

// SinkPinger is the artifact sink as seen by the checker.
type SinkPinger interface {
    Name() string
    Ping(ctx context.Context) error
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
    redis    RedisPinger
    sink     SinkPinger
    renderer func() error
}

// Options configures the Checker.
type Options struct {
    Redis    RedisPinger // nil when Redis is not configured
    Sink     SinkPinger  // nil when artifact publication is disabled
    Renderer func() error
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK       bool   `json:"ok"`
    Message  string `json:"message"`
    Optional bool   `json:"optional,omitempty"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis    Status `json:"redis"`
    Sink     Status `json:"sink"`
    Renderer Status `json:"renderer"`
}

// Ready reports whether every configured dependency is healthy.
func (s Summary) Ready() bool {
    for _, st := range []Status{s.Redis, s.Sink, s.Renderer} {
        if !st.OK && !st.Optional { return false }
    }
    return true
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    return &Checker{redis: opts.Redis, sink: opts.Sink, renderer: opts.Renderer}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:    c.checkRedis(ctx),
        Sink:     c.checkSink(ctx),
        Renderer: c.checkRenderer(),
    }
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: false, Optional: true, Message: "Not configured, counting locally"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkSink(ctx context.Context) Status {
    if c.sink == nil {
        return Status{OK: false, Optional: true, Message: "Publication disabled"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := c.sink.Ping(ctx); err != nil {
        return Status{OK: false, Message: c.sink.Name() + ": " + trimError(err)}
    }
    return Status{OK: true, Message: c.sink.Name() + ": Connected"}
}

func (c *Checker) checkRenderer() Status {
    if c.renderer == nil {
        return Status{OK: false, Optional: true, Message: "Previews disabled"}
    }
    if err := c.renderer(); err != nil {
        return Status{OK: false, Optional: true, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
