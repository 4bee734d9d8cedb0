// Package exec runs the external tools the scan pipeline drives (git and
// ripgrep) behind a small, mockable interface.
//
// Command is the concrete executor. Settings passed to New apply to every run;
// settings chained before a single Run or Stream call apply to that call only
// and are cleared afterwards:
//
//	cmd := exec.New(exec.WithDisableColors())
//	res, err := cmd.WithDir(repo).WithTimeout(30 * time.Second).Run("git", "rev-parse", "HEAD")
//
// A CommandWrapper prefixes every invocation with a binary name:
//
//	git := exec.NewWrapper(cmd, "git")
//	res, err := git.WithDir(repo).Run("status", "--porcelain")
//
// Stream delivers standard output line by line while the process is still
// running, which lets callers consume large outputs lazily and stop early:
//
//	_, err := rg.WithDir(repo).Stream(func(line string) error {
//	    return handle(line)
//	}, "--line-number", "TODO")
//
// A Command is not safe for concurrent use. Clone it once per goroutine.
package exec
