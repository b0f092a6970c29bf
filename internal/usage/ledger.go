package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Caller is who an operation is billed to.
type Caller struct {
	ID        string
	Unlimited bool // premium callers bypass the quota but are still counted
}

// Decision is the outcome of a usage check.
type Decision struct {
	Allowed bool
	Used    int64
	Quota   int64 // 0 when the caller is unlimited
}

// Remaining returns how many more operations the caller may run this period,
// or -1 when unlimited.
func (d Decision) Remaining() int64 {
	if d.Quota == 0 {
		return -1
	}
	return max(d.Quota-d.Used, 0)
}

// Ledger is the usage gate consulted before and after every operation.
type Ledger interface {
	Check(ctx context.Context, tool Tool, caller Caller) (Decision, error)
	Record(ctx context.Context, tool Tool, caller Caller) (int64, error)
}

// Counter is a keyed monotonic counter with per-key expiry.
type Counter interface {
	Get(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Raise sets key to n if n is larger than the current value.
	Raise(ctx context.Context, key string, n int64, ttl time.Duration) error
}

// Options configures a QuotaLedger.
type Options struct {
	Local  Counter // defaults to an in-process MemoryCounter
	Remote Counter // optional shared counter
	Quota  int64
	Period time.Duration
	Prefix string
	Now    func() time.Time
}

// QuotaLedger allows Quota operations per tool, caller and period. Counts
// are kept in a local cache and an optional remote counter; the effective
// count is the larger of the two and the local cache is raised to match, so
// a caller never sees their count go down. A failing remote degrades to
// local counting.
type QuotaLedger struct {
	local  Counter
	remote Counter
	quota  int64
	period time.Duration
	prefix string
	now    func() time.Time
}

func NewQuotaLedger(opts Options) *QuotaLedger {
	if opts.Local == nil { opts.Local = NewMemoryCounter() }
	if opts.Quota <= 0 { opts.Quota = 3 }
	if opts.Period <= 0 { opts.Period = 24 * time.Hour }
	if opts.Prefix == "" { opts.Prefix = "usage" }
	if opts.Now == nil { opts.Now = time.Now }
	return &QuotaLedger{
		local:  opts.Local,
		remote: opts.Remote,
		quota:  opts.Quota,
		period: opts.Period,
		prefix: opts.Prefix,
		now:    opts.Now,
	}
}

// Quota returns the configured per-period allowance.
func (l *QuotaLedger) Quota() int64 { return l.quota }

// key buckets counts by UTC-aligned period.
func (l *QuotaLedger) key(tool Tool, caller Caller) string {
	bucket := l.now().UTC().Truncate(l.period).Unix()
	return fmt.Sprintf("%s:%s:%s:%d", l.prefix, tool, caller.ID, bucket)
}

func validate(tool Tool, caller Caller) error {
	if !tool.Valid() {
		return fmt.Errorf("usage: unknown tool %d", int(tool))
	}
	if caller.ID == "" {
		return errors.New("usage: caller id is required")
	}
	return nil
}

func (l *QuotaLedger) Check(ctx context.Context, tool Tool, caller Caller) (Decision, error) {
	if err := validate(tool, caller); err != nil {
		return Decision{}, err
	}
	key := l.key(tool, caller)
	used, err := l.local.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("usage: read local count: %w", err)
	}
	if l.remote != nil {
		remote, rerr := l.remote.Get(ctx, key)
		if rerr != nil {
			log.Warn().Err(rerr).Str("tool", tool.String()).Msg("usage: remote counter unavailable, using local count")
		} else if remote > used {
			used = remote
			l.raiseLocal(ctx, key, used)
		}
	}
	if caller.Unlimited {
		return Decision{Allowed: true, Used: used}, nil
	}
	return Decision{Allowed: used < l.quota, Used: used, Quota: l.quota}, nil
}

func (l *QuotaLedger) Record(ctx context.Context, tool Tool, caller Caller) (int64, error) {
	if err := validate(tool, caller); err != nil {
		return 0, err
	}
	key := l.key(tool, caller)
	n, err := l.local.Incr(ctx, key, l.period)
	if err != nil {
		return 0, fmt.Errorf("usage: record locally: %w", err)
	}
	if l.remote != nil {
		remote, rerr := l.remote.Incr(ctx, key, l.period)
		if rerr != nil {
			log.Warn().Err(rerr).Str("tool", tool.String()).Msg("usage: remote record failed, counted locally only")
		} else if remote > n {
			n = remote
			l.raiseLocal(ctx, key, n)
		}
	}
	log.Debug().Str("tool", tool.String()).Str("caller", caller.ID).Int64("used", n).Msg("usage recorded")
	return n, nil
}

func (l *QuotaLedger) raiseLocal(ctx context.Context, key string, n int64) {
	if err := l.local.Raise(ctx, key, n, l.period); err != nil {
		log.Warn().Err(err).Msg("usage: raise local count failed")
	}
}
