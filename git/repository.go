package git

import (
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Repository is a working copy opened through a billy filesystem.
type Repository struct {
	path string
	repo *gogit.Repository
	fs   billy.Filesystem
}

// RepositoryOption configures Open.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	fs billy.Filesystem
}

// WithFilesystem opens the repository through fs instead of the OS
// filesystem. The path passed to Open is interpreted inside fs.
func WithFilesystem(fs billy.Filesystem) RepositoryOption {
	return func(o *repositoryOptions) {
		o.fs = fs
	}
}

// Open opens the non-bare working copy at path.
func Open(path string, opts ...RepositoryOption) (*Repository, error) {
	options := &repositoryOptions{fs: osfs.New("/")}
	for _, opt := range opts {
		opt(options)
	}

	scoped, err := options.fs.Chroot(path)
	if err != nil {
		return nil, wrapError(err, "failed to scope filesystem to repository")
	}
	dotGit, err := scoped.Chroot(gogit.GitDirName)
	if err != nil {
		return nil, wrapError(err, "failed to scope filesystem to .git")
	}

	storage := filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault())
	repo, err := gogit.Open(storage, scoped)
	if err != nil {
		return nil, wrapError(err, "failed to open repository")
	}

	return &Repository{path: path, repo: repo, fs: scoped}, nil
}

// Path returns the path the repository was opened at.
func (r *Repository) Path() string {
	return r.path
}

// Underlying returns the go-git repository.
func (r *Repository) Underlying() *gogit.Repository {
	return r.repo
}

// Filesystem returns the working tree filesystem, rooted at the repository.
func (r *Repository) Filesystem() billy.Filesystem {
	return r.fs
}

// HeadCommit returns the hash HEAD points at.
func (r *Repository) HeadCommit() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, wrapError(err, "failed to resolve HEAD")
	}
	return ref.Hash(), nil
}

// CurrentBranch returns the short name of the checked out branch, or an
// empty string for a detached HEAD.
func (r *Repository) CurrentBranch() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", wrapError(err, "failed to resolve HEAD")
	}
	if !ref.Name().IsBranch() {
		return "", nil
	}
	return ref.Name().Short(), nil
}

// TrackedFiles lists the regular files recorded in the index, sorted by
// path. Symlinks and submodules are excluded.
func (r *Repository) TrackedFiles() ([]string, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, wrapError(err, "failed to read index")
	}

	files := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Mode != filemode.Regular && e.Mode != filemode.Executable {
			continue
		}
		files = append(files, e.Name)
	}
	sort.Strings(files)
	return files, nil
}

// CommitSummary returns the first line of the message of commit hash.
func (r *Repository) CommitSummary(hash plumbing.Hash) (string, error) {
	c, err := r.repo.CommitObject(hash)
	if err != nil {
		return "", wrapError(err, "failed to read commit")
	}
	summary, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(summary), nil
}
