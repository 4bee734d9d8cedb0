package git

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"golang.org/x/sync/singleflight"

	"github.com/jmgilman/willdolater/errors"
)

// blameCacheSize bounds the number of whole-file blame results kept.
const blameCacheSize = 128

// NativeDriver implements Driver with go-git. go-git blames whole files, so
// results are cached per commit and file, and concurrent requests for the
// same file share one computation.
type NativeDriver struct {
	depth int

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]*gogit.BlameResult
	order []string
}

// NativeOption configures a NativeDriver.
type NativeOption func(*NativeDriver)

// WithNativeCloneDepth limits clones to the given number of commits.
func WithNativeCloneDepth(depth int) NativeOption {
	return func(d *NativeDriver) {
		d.depth = depth
	}
}

// NewNativeDriver returns a go-git backed Driver.
func NewNativeDriver(opts ...NativeOption) *NativeDriver {
	d := &NativeDriver{cache: make(map[string]*gogit.BlameResult)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Clone clones the default branch of remote into dest.
func (d *NativeDriver) Clone(ctx context.Context, remote Identifier, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return wrapError(err, "failed to create clone directory")
	}

	worktree := osfs.New(dest)
	dotGit, err := worktree.Chroot(gogit.GitDirName)
	if err != nil {
		return wrapError(err, "failed to create .git filesystem")
	}
	storage := filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault())

	_, err = gogit.CloneContext(ctx, storage, worktree, &gogit.CloneOptions{
		URL:          remote.CloneURL(),
		SingleBranch: true,
		Depth:        d.depth,
		Tags:         gogit.NoTags,
	})
	if err != nil {
		return wrapError(err, "failed to clone repository")
	}
	return nil
}

// Update fetches the remote default branch and hard-resets the working copy
// to it, removing untracked files.
func (d *NativeDriver) Update(ctx context.Context, path string) error {
	repo, err := Open(path)
	if err != nil {
		return err
	}
	r := repo.Underlying()

	branch, err := d.defaultBranch(ctx, repo)
	if err != nil {
		return err
	}

	remoteRef := plumbing.NewRemoteReferenceName(gogit.DefaultRemoteName, branch)
	refSpec := config.RefSpec("+" + plumbing.NewBranchReferenceName(branch).String() + ":" + remoteRef.String())
	err = r.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: gogit.DefaultRemoteName,
		RefSpecs:   []config.RefSpec{refSpec},
		Depth:      d.depth,
		Tags:       gogit.NoTags,
		Force:      true,
	})
	if err != nil && !stderrors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return wrapError(err, "failed to fetch from origin")
	}

	target, err := r.Reference(remoteRef, true)
	if err != nil {
		return wrapError(err, "failed to resolve remote default branch")
	}

	wt, err := r.Worktree()
	if err != nil {
		return wrapError(err, "failed to open worktree")
	}

	local := plumbing.NewBranchReferenceName(branch)
	if current, _ := repo.CurrentBranch(); current != branch {
		checkout := &gogit.CheckoutOptions{Branch: local, Force: true}
		if _, lookupErr := r.Reference(local, false); lookupErr != nil {
			checkout.Hash = target.Hash()
			checkout.Create = true
		}
		if err := wt.Checkout(checkout); err != nil {
			return wrapError(err, "failed to switch to default branch")
		}
	}

	if err := wt.Reset(&gogit.ResetOptions{Commit: target.Hash(), Mode: gogit.HardReset}); err != nil {
		return wrapError(err, "failed to reset working copy")
	}
	if err := wt.Clean(&gogit.CleanOptions{Dir: true}); err != nil {
		return wrapError(err, "failed to clean working copy")
	}
	return nil
}

// defaultBranch asks origin which branch its HEAD points to and falls back
// to the checked out branch when the remote does not say.
func (d *NativeDriver) defaultBranch(ctx context.Context, repo *Repository) (string, error) {
	remote, err := repo.Underlying().Remote(gogit.DefaultRemoteName)
	if err != nil {
		return "", wrapError(err, "failed to load origin")
	}

	refs, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		if ctxErr := errors.FromContext(ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", wrapError(err, "failed to list remote references")
	}
	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD && ref.Type() == plumbing.SymbolicReference && ref.Target().IsBranch() {
			return ref.Target().Short(), nil
		}
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		return "", err
	}
	if branch == "" {
		return "", errors.New(errors.CodeNotFound, "working copy has no branch checked out")
	}
	return branch, nil
}

// AttributeLine blames file at HEAD and returns the entry for line.
func (d *NativeDriver) AttributeLine(ctx context.Context, path, file string, line int) (*Attribution, error) {
	if line < 1 {
		return nil, notAttributable(file, line, "line numbers start at 1")
	}
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}

	repo, err := Open(path)
	if err != nil {
		return nil, err
	}
	head, err := repo.HeadCommit()
	if err != nil {
		return nil, err
	}

	file = filepath.ToSlash(file)
	result, err := d.blame(ctx, repo, head, file)
	if IsNotAttributable(err) {
		return nil, notAttributable(file, line, "file is not tracked at HEAD")
	}
	if err != nil {
		return nil, err
	}
	if line > len(result.Lines) {
		return nil, notAttributable(file, line, "line is past the end of the file")
	}

	l := result.Lines[line-1]
	summary, err := repo.CommitSummary(l.Hash)
	if err != nil {
		return nil, err
	}

	return &Attribution{
		Commit:     l.Hash.String(),
		Author:     l.AuthorName,
		Email:      l.Author,
		AuthoredAt: l.Date,
		Summary:    summary,
	}, nil
}

func (d *NativeDriver) blame(ctx context.Context, repo *Repository, head plumbing.Hash, file string) (*gogit.BlameResult, error) {
	key := head.String() + "\x00" + file

	d.mu.Lock()
	cached, ok := d.cache[key]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}

	ch := d.group.DoChan(key, func() (interface{}, error) {
		commit, err := repo.Underlying().CommitObject(head)
		if err != nil {
			return nil, wrapError(err, "failed to read HEAD commit")
		}
		result, err := gogit.Blame(commit, file)
		if err != nil {
			if classifyError(err) == errors.CodeNotAttributable {
				return nil, errors.Wrap(err, errors.CodeNotAttributable, "file is not tracked at HEAD")
			}
			return nil, errors.Wrapf(err, errors.CodeAttributionFailed, "failed to blame %s", file)
		}
		d.remember(key, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, errors.FromContext(ctx)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gogit.BlameResult), nil
	}
}

func (d *NativeDriver) remember(key string, result *gogit.BlameResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.cache[key]; ok {
		return
	}
	if len(d.order) >= blameCacheSize {
		delete(d.cache, d.order[0])
		d.order = d.order[1:]
	}
	d.cache[key] = result
	d.order = append(d.order, key)
}
