// Package testutil builds throwaway repositories with controlled history for
// tests of the scan pipeline.
package testutil

import (
	"os"
	osexec "os/exec"
	"path/filepath"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Test identities.
const (
	TestAuthor  = "Test User"
	TestEmail   = "test@example.com"
	TestAuthor2 = "Another User"
	TestEmail2  = "another@example.com"
)

// Epoch is a fixed reference time. Fixtures offset commit times from it so
// attribution results are stable across runs.
var Epoch = time.Date(2015, time.March, 14, 9, 26, 53, 0, time.UTC)

// Author identifies who authored a fixture commit and when.
type Author struct {
	Name  string
	Email string
	When  time.Time
}

// At returns the default test author at the given time.
func At(when time.Time) Author {
	return Author{Name: TestAuthor, Email: TestEmail, When: when}
}

// Repo is an on-disk repository with a worktree on the main branch.
type Repo struct {
	Path string
	repo *gogit.Repository
	wt   *gogit.Worktree
}

// NewRepo initializes an empty repository at path with "main" as the
// default branch.
func NewRepo(path string) (*Repo, error) {
	repo, err := gogit.PlainInitWithOptions(path, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	return &Repo{Path: path, repo: repo, wt: wt}, nil
}

// URL returns a file URL for the repository, suitable for cloning.
func (r *Repo) URL() string {
	return "file://" + filepath.ToSlash(r.Path)
}

// Underlying returns the go-git repository.
func (r *Repo) Underlying() *gogit.Repository {
	return r.repo
}

// Commit writes files (path to content), stages them and commits with the
// given author. The committer time is always the current time, so tests can
// tell authored time from commit time.
func (r *Repo) Commit(message string, author Author, files map[string]string) (string, error) {
	for name, content := range files {
		full := filepath.Join(r.Path, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return "", err
		}
		if _, err := r.wt.Add(name); err != nil {
			return "", err
		}
	}

	hash, err := r.wt.Commit(message, &gogit.CommitOptions{
		Author:            &object.Signature{Name: author.Name, Email: author.Email, When: author.When},
		Committer:         &object.Signature{Name: TestAuthor2, Email: TestEmail2, When: time.Now()},
		AllowEmptyCommits: len(files) == 0,
	})
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// Delete removes files from the worktree and commits the removal.
func (r *Repo) Delete(message string, author Author, paths ...string) (string, error) {
	for _, p := range paths {
		if _, err := r.wt.Remove(p); err != nil {
			return "", err
		}
	}
	hash, err := r.wt.Commit(message, &gogit.CommitOptions{
		Author:    &object.Signature{Name: author.Name, Email: author.Email, When: author.When},
		Committer: &object.Signature{Name: TestAuthor2, Email: TestEmail2, When: time.Now()},
	})
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// WriteUntracked writes a file without staging it.
func (r *Repo) WriteUntracked(name, content string) error {
	full := filepath.Join(r.Path, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}

// HasGit reports whether a git installation is on PATH. go-git's file
// transport shells out to git-upload-pack, so cloning a fixture needs one.
func HasGit() bool {
	_, err := osexec.LookPath("git")
	return err == nil
}
