package pattern

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCompiler(t *testing.T, timeout time.Duration) *Compiler {
	t.Helper()
	c, err := NewCompiler(Options{Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCompileRejectsInvalid(t *testing.T) {
	assert := assert.New(t)
	c := testCompiler(t, 0)

	cases := []struct {
		source string
		flags  string
	}{
		{source: ""},
		{source: "(unclosed"},
		{source: "a**b++["},
		{source: "(?=lookahead)"},
		{source: `(a)\1`},
		{source: "valid", flags: "x"},
		{source: strings.Repeat("a", DefaultMaxLength+1)},
	}

	for _, tc := range cases {
		p, err := c.Compile(tc.source, tc.flags)
		assert.Nil(p)
		assert.ErrorIs(err, ErrInvalidPattern, "source %q flags %q", tc.source, tc.flags)

		var ipe *InvalidPatternError
		assert.True(errors.As(err, &ipe))
	}
}

func TestCompileFlags(t *testing.T) {
	assert := assert.New(t)
	c := testCompiler(t, 0)

	p, err := c.Compile("free nitro", "gi")
	require.NoError(t, err)
	matched, err := c.Execute(p, "Get your FREE NITRO now")
	assert.NoError(err)
	assert.True(matched)

	p, err = c.Compile("free nitro", "")
	require.NoError(t, err)
	matched, err = c.Execute(p, "Get your FREE NITRO now")
	assert.NoError(err)
	assert.False(matched)

	p, err = c.Compile("^line$", "m")
	require.NoError(t, err)
	matched, err = c.Execute(p, "first\nline\nlast")
	assert.NoError(err)
	assert.True(matched)
}

func TestCompileCachesByFlagsAndSource(t *testing.T) {
	c := testCompiler(t, 0)

	p1, err := c.Compile("abc", "i")
	require.NoError(t, err)
	c.cache.Wait()

	p2, err := c.Compile("abc", "i")
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	p3, err := c.Compile("abc", "")
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
}

func TestExecuteDeterministic(t *testing.T) {
	c := testCompiler(t, 0)
	p, err := c.Compile(`discord\.gg/\w+`, "i")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		matched, err := c.Execute(p, "join discord.gg/abc today")
		require.NoError(t, err)
		require.True(t, matched)
	}
}

func TestExecuteTimeoutIsNonMatch(t *testing.T) {
	assert := assert.New(t)
	c := testCompiler(t, time.Millisecond)

	p, err := c.Compile(`(?:a|aa|aaa|aaaa)*b`, "")
	require.NoError(t, err)

	input := strings.Repeat("a", 8<<20)
	start := time.Now()
	matched, err := c.Execute(p, input)
	elapsed := time.Since(start)

	assert.False(matched)
	assert.ErrorIs(err, ErrPatternTimeout)
	assert.Less(elapsed, 500*time.Millisecond)

	// the compiler stays usable for other patterns
	fast, err := c.Compile(`^a`, "")
	require.NoError(t, err)
	matched, err = c.Execute(fast, "abc")
	assert.NoError(err)
	assert.True(matched)
}

func TestExecuteBoundsAbandonedMatches(t *testing.T) {
	c, err := NewCompiler(Options{Timeout: 5 * time.Millisecond, MaxInFlight: 1})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	slow, err := c.Compile(`(?:a|aa|aaa|aaaa)*b`, "")
	require.NoError(t, err)
	fast, err := c.Compile(`^a`, "")
	require.NoError(t, err)

	_, err = c.Execute(slow, strings.Repeat("a", 8<<20))
	require.ErrorIs(t, err, ErrPatternTimeout)

	// the abandoned match still holds the only slot
	matched, err := c.Execute(fast, "abc")
	assert.False(t, matched)
	assert.ErrorIs(t, err, ErrPatternTimeout)

	assert.Eventually(t, func() bool {
		matched, err := c.Execute(fast, "abc")
		return err == nil && matched
	}, 10*time.Second, 10*time.Millisecond, "slot is released once the match finishes")
}
