package pattern

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultTimeout   = 100 * time.Millisecond
	DefaultMaxLength = 512
	DefaultCacheSize = 10000
)

var (
	ErrInvalidPattern = errors.New("invalid pattern")
	ErrPatternTimeout = errors.New("pattern execution timed out")
)

// InvalidPatternError is returned at authoring time for a pattern that can never run
type InvalidPatternError struct {
	Source string
	Reason string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Source, e.Reason)
}

func (e *InvalidPatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

type Options struct {
	Timeout   time.Duration
	MaxLength int
	// CacheSize is the number of compiled patterns kept in memory
	CacheSize int64
	// MaxInFlight bounds concurrently running matches, abandoned ones included.
	// Defaults to 8 per CPU.
	MaxInFlight int64
}

// Compiled is a validated pattern ready for Execute. It is immutable and safe
// for concurrent use.
type Compiled struct {
	Source string
	Flags  string
	re     *regexp.Regexp
}

func (c *Compiled) String() string {
	return c.re.String()
}

// Compiler validates, compiles and runs untrusted patterns with a wall-clock budget
type Compiler struct {
	timeout   time.Duration
	maxLength int
	cache     *ristretto.Cache
	slots     *semaphore.Weighted
}

func NewCompiler(opts Options) (*Compiler, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = int64(runtime.GOMAXPROCS(0)) * 8
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: opts.CacheSize * 10,
		MaxCost:     opts.CacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern cache: %w", err)
	}

	return &Compiler{
		timeout:   opts.Timeout,
		maxLength: opts.MaxLength,
		cache:     cache,
		slots:     semaphore.NewWeighted(opts.MaxInFlight),
	}, nil
}

func (c *Compiler) Timeout() time.Duration {
	return c.timeout
}

func (c *Compiler) MaxLength() int {
	return c.maxLength
}

// Compile validates source and flags and returns a compiled pattern.
// Results are cached by (flags, source).
func (c *Compiler) Compile(source, flags string) (*Compiled, error) {
	key := flags + "\x00" + source
	if v, ok := c.cache.Get(key); ok {
		return v.(*Compiled), nil
	}

	if source == "" {
		return nil, &InvalidPatternError{Source: source, Reason: "empty pattern"}
	}
	if len(source) > c.maxLength {
		return nil, &InvalidPatternError{
			Source: truncate(source, 32),
			Reason: fmt.Sprintf("longer than %d characters", c.maxLength),
		}
	}

	prefix, err := inlineFlags(flags)
	if err != nil {
		return nil, &InvalidPatternError{Source: source, Reason: err.Error()}
	}

	re, err := regexp.Compile(prefix + source)
	if err != nil {
		return nil, &InvalidPatternError{Source: source, Reason: strings.TrimPrefix(err.Error(), "error parsing regexp: ")}
	}

	compiled := &Compiled{Source: source, Flags: flags, re: re}
	c.cache.Set(key, compiled, 1)
	return compiled, nil
}

// Execute reports whether input matches p. A match that runs past the
// timeout is abandoned and reported as ErrPatternTimeout with matched=false.
// RE2 runs in linear time so an abandoned match always finishes, and it keeps
// its slot until then. Waiting for a free slot spends the same budget.
func (c *Compiler) Execute(p *Compiled, input string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.slots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("%w: no free match slot", ErrPatternTimeout)
	}

	done := make(chan bool, 1)
	go func() {
		defer c.slots.Release(1)
		done <- p.re.MatchString(input)
	}()

	select {
	case matched := <-done:
		return matched, nil
	case <-ctx.Done():
		return false, ErrPatternTimeout
	}
}

func (c *Compiler) Close() {
	c.cache.Close()
}

// inlineFlags maps the flag letters authors are used to onto RE2 inline flags.
// g, u, y and d only affect iteration or encoding and are ignored.
func inlineFlags(flags string) (string, error) {
	var inline strings.Builder
	seen := make(map[rune]bool, len(flags))
	for _, f := range flags {
		if seen[f] {
			continue
		}
		seen[f] = true

		switch f {
		case 'i', 'm', 's':
			inline.WriteRune(f)
		case 'g', 'u', 'y', 'd':
		default:
			return "", fmt.Errorf("unsupported flag %q", f)
		}
	}

	if inline.Len() == 0 {
		return "", nil
	}
	return "(?" + inline.String() + ")", nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
