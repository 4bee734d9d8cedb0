package git

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePorcelain = "3f2a9c1e4b5d6f708192a3b4c5d6e7f8091a2b3c 7 7 1\n" +
	"author Jane Doe\n" +
	"author-mail <jane@example.com>\n" +
	"author-time 1577836800\n" +
	"author-tz +0100\n" +
	"committer Build Bot\n" +
	"committer-mail <bot@example.com>\n" +
	"committer-time 1700000000\n" +
	"committer-tz +0000\n" +
	"summary Add the parser\n" +
	"filename src/parse.go\n" +
	"\t// TODO: handle escapes\n"

func TestParseBlamePorcelain(t *testing.T) {
	attr, err := parseBlamePorcelain(samplePorcelain)
	require.NoError(t, err)

	assert.Equal(t, "3f2a9c1e4b5d6f708192a3b4c5d6e7f8091a2b3c", attr.Commit)
	assert.Equal(t, "Jane Doe", attr.Author)
	assert.Equal(t, "jane@example.com", attr.Email)
	assert.Equal(t, "Add the parser", attr.Summary)
	assert.True(t, attr.AuthoredAt.Equal(time.Unix(1577836800, 0)), "uses author time, not committer time")

	_, offset := attr.AuthoredAt.Zone()
	assert.Equal(t, 3600, offset)
}

func TestParseBlamePorcelain_Errors(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"empty", ""},
		{"short header", "abc 1 1\n"},
		{"no author time", "3f2a9c1e4b5d6f708192a3b4c5d6e7f8091a2b3c 1 1 1\nauthor X\n\tline\n"},
		{"bad author time", "3f2a9c1e4b5d6f708192a3b4c5d6e7f8091a2b3c 1 1 1\nauthor-time soon\n\tline\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBlamePorcelain(tt.output)
			assert.Error(t, err)
		})
	}
}

func TestParseBlamePorcelain_IgnoresContentAfterHeader(t *testing.T) {
	output := "3f2a9c1e4b5d6f708192a3b4c5d6e7f8091a2b3c 1 1 1\n" +
		"author-time 100\n" +
		"summary first\n" +
		"\tsummary looks like a header\n"

	attr, err := parseBlamePorcelain(output)
	require.NoError(t, err)
	assert.Equal(t, "first", attr.Summary)
}

func TestParseTZ(t *testing.T) {
	tests := []struct {
		tz   string
		want int
	}{
		{"+0000", 0},
		{"+0530", 5*3600 + 30*60},
		{"-0800", -8 * 3600},
		{"", 0},
		{"bogus", 0},
	}

	for _, tt := range tests {
		t.Run(tt.tz, func(t *testing.T) {
			_, offset := time.Unix(0, 0).In(parseTZ(tt.tz)).Zone()
			assert.Equal(t, tt.want, offset)
		})
	}
}
