package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWildcardRoundTrip(t *testing.T) {
	assert := assert.New(t)
	c := testCompiler(t, 0)

	patterns, errs := Translate("*badword*, exact")
	require.Empty(t, errs)
	require.Len(t, patterns, 2)

	assert.Equal("*badword*", patterns[0].Label)
	assert.Equal("exact", patterns[1].Label)

	first, err := c.Compile(patterns[0].Regex, patterns[0].Flags)
	require.NoError(t, err)
	second, err := c.Compile(patterns[1].Regex, patterns[1].Flags)
	require.NoError(t, err)

	fixtures := []struct {
		p     *Compiled
		input string
		match bool
	}{
		{p: first, input: "thisisabadwordhere", match: true},
		{p: first, input: "BADWORD", match: true},
		{p: first, input: "bad word", match: false},
		{p: second, input: "exact", match: true},
		{p: second, input: "EXACT", match: true},
		{p: second, input: "not exact", match: false},
		{p: second, input: "exactly", match: false},
	}

	for _, f := range fixtures {
		matched, err := c.Execute(f.p, f.input)
		assert.NoError(err)
		assert.Equal(f.match, matched, "%s on %q", f.p.Source, f.input)
	}
}

func TestWildcardEscapesLiterals(t *testing.T) {
	c := testCompiler(t, 0)

	patterns, errs := Translate("a.b*(c)")
	require.Empty(t, errs)
	require.Len(t, patterns, 1)
	assert.Equal(t, `^a\.b.*\(c\)$`, patterns[0].Regex)

	p, err := c.Compile(patterns[0].Regex, patterns[0].Flags)
	require.NoError(t, err)

	matched, _ := c.Execute(p, "a.b and (c)")
	assert.True(t, matched)
	matched, _ = c.Execute(p, "axb(c)")
	assert.False(t, matched)
}

func TestWildcardPartialFailure(t *testing.T) {
	assert := assert.New(t)

	patterns, errs := WildcardTranslator{MaxLength: 20}.Translate("good, **, , *" + "waytoolongtokenfortranslation" + "*, fine*")
	assert.Len(patterns, 2)
	assert.Equal("good", patterns[0].Label)
	assert.Equal("fine*", patterns[1].Label)

	require.Len(t, errs, 2)
	assert.Equal("**", errs[0].Token)
	assert.Equal(1, errs[0].Index)
	assert.Equal(3, errs[1].Index)
}

func TestWildcardCollapsesStars(t *testing.T) {
	patterns, errs := Translate("a***b")
	require.Empty(t, errs)
	assert.Equal(t, "^a.*b$", patterns[0].Regex)
}

func TestWildcardEmptyExpression(t *testing.T) {
	patterns, errs := Translate("  ")
	assert.Empty(t, patterns)
	assert.Len(t, errs, 1)
}
