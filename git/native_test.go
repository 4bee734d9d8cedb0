package git_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/git"
	"github.com/jmgilman/willdolater/git/testutil"
)

func newFixture(t *testing.T) *testutil.Repo {
	t.Helper()
	repo, err := testutil.NewRepo(filepath.Join(t.TempDir(), "origin"))
	require.NoError(t, err)
	return repo
}

func TestNativeDriver_AttributeLine(t *testing.T) {
	repo := newFixture(t)
	old := testutil.Epoch
	newer := testutil.Epoch.Add(90 * 24 * time.Hour)

	first, err := repo.Commit("Add main", testutil.At(old), map[string]string{
		"main.go": "package main\n\n// TODO: old\nfunc main() {}\n",
	})
	require.NoError(t, err)

	second, err := repo.Commit("Extend main", testutil.Author{Name: testutil.TestAuthor2, Email: testutil.TestEmail2, When: newer},
		map[string]string{
			"main.go": "package main\n\n// TODO: old\nfunc main() {}\n\n// TODO: new\n",
		})
	require.NoError(t, err)

	d := git.NewNativeDriver()
	ctx := context.Background()

	attr, err := d.AttributeLine(ctx, repo.Path, "main.go", 3)
	require.NoError(t, err)
	assert.Equal(t, first, attr.Commit)
	assert.Equal(t, testutil.TestAuthor, attr.Author)
	assert.Equal(t, testutil.TestEmail, attr.Email)
	assert.Equal(t, "Add main", attr.Summary)
	assert.True(t, attr.AuthoredAt.Equal(old), "authored time %v, want %v", attr.AuthoredAt, old)

	attr, err = d.AttributeLine(ctx, repo.Path, "main.go", 6)
	require.NoError(t, err)
	assert.Equal(t, second, attr.Commit)
	assert.Equal(t, testutil.TestAuthor2, attr.Author)
	assert.True(t, attr.AuthoredAt.Equal(newer))
}

func TestNativeDriver_AttributeLineNotAttributable(t *testing.T) {
	repo := newFixture(t)
	_, err := repo.Commit("Add file", testutil.At(testutil.Epoch), map[string]string{"a.txt": "one\ntwo\n"})
	require.NoError(t, err)
	require.NoError(t, repo.WriteUntracked("scratch.txt", "TODO: untracked\n"))

	d := git.NewNativeDriver()
	ctx := context.Background()

	tests := []struct {
		name string
		file string
		line int
	}{
		{"untracked file", "scratch.txt", 1},
		{"missing file", "nope.txt", 1},
		{"past end of file", "a.txt", 10},
		{"zero line", "a.txt", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.AttributeLine(ctx, repo.Path, tt.file, tt.line)
			require.Error(t, err)
			assert.True(t, git.IsNotAttributable(err), "got %v", err)
		})
	}
}

func TestNativeDriver_AttributeLineCancelled(t *testing.T) {
	repo := newFixture(t)
	_, err := repo.Commit("Add file", testutil.At(testutil.Epoch), map[string]string{"a.txt": "TODO\n"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = git.NewNativeDriver().AttributeLine(ctx, repo.Path, "a.txt", 1)
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
}

func TestNativeDriver_AttributeLineNotARepository(t *testing.T) {
	_, err := git.NewNativeDriver().AttributeLine(context.Background(), t.TempDir(), "a.txt", 1)
	require.Error(t, err)
	assert.False(t, git.IsNotAttributable(err))
}

func TestNativeDriver_CloneAndUpdate(t *testing.T) {
	if !testutil.HasGit() {
		t.Skip("git is not installed")
	}

	origin := newFixture(t)
	_, err := origin.Commit("Initial", testutil.At(testutil.Epoch), map[string]string{"a.txt": "one\n"})
	require.NoError(t, err)

	id, err := git.ParseIdentifier(origin.URL())
	require.NoError(t, err)

	d := git.NewNativeDriver()
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "cache", "entry")

	require.NoError(t, d.Clone(ctx, id, dest))
	assert.FileExists(t, filepath.Join(dest, "a.txt"))

	tip, err := origin.Commit("Second", testutil.At(testutil.Epoch.Add(time.Hour)), map[string]string{"b.txt": "two\n"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stray.txt"), []byte("x"), 0o644))

	require.NoError(t, d.Update(ctx, dest))
	assert.FileExists(t, filepath.Join(dest, "b.txt"))
	assert.NoFileExists(t, filepath.Join(dest, "stray.txt"))

	local, err := git.Open(dest)
	require.NoError(t, err)
	head, err := local.HeadCommit()
	require.NoError(t, err)
	assert.Equal(t, tip, head.String())
}

func TestNativeDriver_CloneMissingRemote(t *testing.T) {
	if !testutil.HasGit() {
		t.Skip("git is not installed")
	}

	id := git.MustParseIdentifier("file://" + filepath.ToSlash(filepath.Join(t.TempDir(), "missing")))
	err := git.NewNativeDriver().Clone(context.Background(), id, filepath.Join(t.TempDir(), "dest"))
	require.Error(t, err)
}
