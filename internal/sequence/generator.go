// Package sequence assigns human-readable ticket numbers of the form PREFIX-YYYYMM-NNNN.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/lock"
	"github.com/spec-kit/ticket-engine/internal/observability"
)

const (
	// FallbackPrefix is used when the entity slug yields no usable characters.
	FallbackPrefix = "TKT"
	// DefaultLockTimeout bounds how long a caller waits for the entity lock.
	DefaultLockTimeout = 5 * time.Second

	prefixLength = 3
	minSeqDigits = 4
	// maxSeqDigits caps how wide a trailing segment may be and still count as a
	// sequence. Timestamp fallback numbers carry 13 digits of Unix milliseconds,
	// so the cap is what keeps them out of MaxSequence. Sequences past 999999999
	// in one month would stop being counted.
	maxSeqDigits  = 9
	metricReserve = "ticket_number"

	baseLockPrefix = "base:"
)

// NumberSource reports the highest sequence already used under a base such as "ACM-202610-".
// Only numbers whose trailing segment has 4 to 9 digits count as sequences.
type NumberSource interface {
	MaxSequence(ctx context.Context, base string) (int, error)
}

// Options tunes a Generator.
type Options struct {
	LockTimeout time.Duration
	Location    *time.Location
	Now         func() time.Time
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Generator produces unique ticket numbers per (prefix, year-month) under a per-entity lock.
type Generator struct {
	locker   lock.Locker
	source   NumberSource
	timeout  time.Duration
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Metrics

	fallbackMu   sync.Mutex
	lastFallback int64
}

// NewGenerator builds a Generator.
func NewGenerator(locker lock.Locker, source NumberSource, opts Options) *Generator {
	g := &Generator{
		locker:   locker,
		source:   source,
		timeout:  opts.LockTimeout,
		location: opts.Location,
		now:      opts.Now,
		logger:   observability.OrNop(opts.Logger),
		metrics:  opts.Metrics,
	}
	if g.timeout <= 0 {
		g.timeout = DefaultLockTimeout
	}
	if g.location == nil {
		g.location = time.UTC
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Next returns the next number for the entity. The lock is released before
// returning, so callers that persist the number afterwards should use Reserve.
func (g *Generator) Next(ctx context.Context, entity *domain.Entity) (string, error) {
	var number string
	err := g.Reserve(ctx, entity, func(_ context.Context, n string) error {
		number = n
		return nil
	})
	return number, err
}

// Reserve computes the next number for the entity and calls fn with it while the
// entity lock is held, so the row that consumes the number is written before
// any other caller reads the maximum. Entities whose slugs share a prefix draw
// from the same base, so the base is locked too, always after the entity.
// When either lock cannot be acquired in time, fn receives a timestamp-based
// number instead. Once fn has succeeded, a failed release is logged and not
// returned: the number is already consumed.
func (g *Generator) Reserve(ctx context.Context, entity *domain.Entity, fn func(ctx context.Context, number string) error) error {
	if entity == nil || entity.ID == "" {
		return errors.New("sequence: entity required")
	}
	base := Base(Prefix(entity.Slug), g.now().In(g.location))

	acquired, written := false, false
	err := lock.WithLock(ctx, g.locker, entity.ID, g.timeout, func(ctx context.Context) error {
		return lock.WithLock(ctx, g.locker, baseLockPrefix+base, g.timeout, func(ctx context.Context) error {
			acquired = true
			last, err := g.source.MaxSequence(ctx, base)
			if err != nil {
				return fmt.Errorf("read max ticket sequence: %w", err)
			}
			if err := fn(ctx, Format(base, last+1)); err != nil {
				return err
			}
			written = true
			return nil
		})
	})
	if written {
		if err != nil {
			g.logger.Warn("release ticket number lock failed",
				zap.String("entity_id", entity.ID),
				zap.String("base", base),
				zap.Error(err))
		}
		g.metrics.RecordOperation(metricReserve, observability.OutcomeSuccess)
		return nil
	}
	if acquired || !errors.Is(err, lock.ErrNotAcquired) {
		return err
	}

	number := g.fallbackNumber(base)
	g.metrics.RecordOperation(metricReserve, observability.OutcomeFallback)
	g.logger.Warn("ticket number lock timed out; using timestamp number",
		zap.String("entity_id", entity.ID),
		zap.Duration("timeout", g.timeout),
		zap.String("ticket_number", number))
	return fn(ctx, number)
}

// fallbackNumber derives a number from the Unix time in milliseconds, bumped so
// that it never repeats within this process.
func (g *Generator) fallbackNumber(base string) string {
	stamp := g.now().UnixMilli()
	g.fallbackMu.Lock()
	if stamp <= g.lastFallback {
		stamp = g.lastFallback + 1
	}
	g.lastFallback = stamp
	g.fallbackMu.Unlock()
	return base + strconv.FormatInt(stamp, 10)
}

// Prefix upper-cases the first three letters or digits of slug, or returns FallbackPrefix.
func Prefix(slug string) string {
	var b strings.Builder
	for _, r := range slug {
		if b.Len() >= prefixLength {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return FallbackPrefix
	}
	return b.String()
}

// Base returns "PREFIX-YYYYMM-" for the given time.
func Base(prefix string, at time.Time) string {
	return prefix + "-" + at.Format("200601") + "-"
}

// Format renders a sequence under base, zero padded to four digits and wider when needed.
func Format(base string, seq int) string {
	return fmt.Sprintf("%s%0*d", base, minSeqDigits, seq)
}

// ParseSequence extracts the sequence from number when it belongs to base.
// Timestamp fallback numbers are longer than nine digits and are rejected.
func ParseSequence(number, base string) (int, bool) {
	if !strings.HasPrefix(number, base) {
		return 0, false
	}
	tail := number[len(base):]
	if len(tail) < minSeqDigits || len(tail) > maxSeqDigits {
		return 0, false
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(tail)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Pattern returns a POSIX regular expression matching sequence numbers under base.
func Pattern(base string) string {
	return fmt.Sprintf("^%s[0-9]{%d,%d}$", regexp.QuoteMeta(base), minSeqDigits, maxSeqDigits)
}
