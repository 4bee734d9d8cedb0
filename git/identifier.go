package git

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/jmgilman/willdolater/errors"
)

// caseInsensitiveHosts treat owner and repository names without regard to
// case, so their paths are lowercased during normalization.
var caseInsensitiveHosts = map[string]bool{
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
}

// defaultPorts are dropped from hosts so that an explicit default port and
// no port name the same remote.
var defaultPorts = map[string]string{
	"https": "443",
	"http":  "80",
	"ssh":   "22",
	"git":   "9418",
}

// scpLike matches user@host:path, the ssh shorthand.
var scpLike = regexp.MustCompile(`^(?:[\w.\-]+@)?([\w.\-]+):([^/].*)$`)

// Identifier is a normalized reference to a remote repository.
type Identifier struct {
	scheme string
	host   string
	path   string
	clone  string
}

// ParseIdentifier validates and normalizes raw.
//
// Accepted forms:
//
//	https://github.com/owner/repo(.git)
//	http://host/owner/repo
//	ssh://git@host/owner/repo.git
//	git://host/owner/repo
//	git@github.com:owner/repo.git
//	github.com/owner/repo
//	file:///absolute/path/to/repo
//
// Remote paths need at least an owner and a name. Query strings, fragments
// and relative segments are rejected.
func ParseIdentifier(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, errors.New(errors.CodeInvalidIdentifier, "repository reference is empty")
	}

	var id Identifier
	switch {
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Identifier{}, errors.Wrapf(err, errors.CodeInvalidIdentifier, "malformed repository URL %q", raw)
		}
		if u.RawQuery != "" || u.Fragment != "" {
			return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "repository URL %q must not carry a query or fragment", raw)
		}
		scheme := strings.ToLower(u.Scheme)
		switch scheme {
		case "https", "http", "ssh", "git":
			id = Identifier{scheme: scheme, host: canonicalHost(scheme, u.Host), path: u.Path}
		case "file":
			return parseFile(raw, u)
		default:
			return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "unsupported scheme %q", u.Scheme)
		}
	case scpLike.MatchString(raw):
		m := scpLike.FindStringSubmatch(raw)
		if port, rest, ok := strings.Cut(m[2], "/"); ok && isPort(port) {
			// host:port/owner/repo is a scheme-less URL, not ssh shorthand.
			if strings.Contains(raw[:strings.Index(raw, ":")], "@") {
				return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "%q is ambiguous: use an ssh:// URL to give a port", raw)
			}
			id = Identifier{scheme: "https", host: canonicalHost("https", m[1]+":"+port), path: rest}
			break
		}
		id = Identifier{scheme: "ssh", host: strings.ToLower(m[1]), path: m[2]}
	default:
		host, rest, ok := strings.Cut(raw, "/")
		if !ok || !strings.Contains(host, ".") {
			return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "%q is not a repository URL", raw)
		}
		id = Identifier{scheme: "https", host: canonicalHost("https", host), path: rest}
	}

	if id.host == "" {
		return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "repository URL %q has no host", raw)
	}

	p, err := cleanRepoPath(id.path)
	if err != nil {
		return Identifier{}, errors.WithContext(err, "input", raw)
	}
	if caseInsensitiveHosts[hostname(id.host)] {
		p = strings.ToLower(p)
	}
	id.path = p

	switch id.scheme {
	case "ssh":
		if strings.HasPrefix(raw, "ssh://") {
			id.clone = raw
		} else {
			id.clone = fmt.Sprintf("git@%s:%s.git", id.host, id.path)
		}
	default:
		id.clone = fmt.Sprintf("%s://%s/%s.git", id.scheme, id.host, id.path)
	}
	return id, nil
}

// MustParseIdentifier is ParseIdentifier for constants and tests.
func MustParseIdentifier(raw string) Identifier {
	id, err := ParseIdentifier(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func parseFile(raw string, u *url.URL) (Identifier, error) {
	if u.Host != "" && u.Host != "localhost" {
		return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "file URL %q must not name a host", raw)
	}
	if !path.IsAbs(u.Path) {
		return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "file URL %q must be absolute", raw)
	}
	if hasDotSegment(u.Path) {
		return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "file URL %q contains relative segments", raw)
	}
	p := strings.TrimSuffix(path.Clean(u.Path), "/")
	if p == "" {
		return Identifier{}, errors.Newf(errors.CodeInvalidIdentifier, "file URL %q has no path", raw)
	}
	return Identifier{scheme: "file", path: p, clone: p}, nil
}

// cleanRepoPath strips slashes and a ".git" suffix and checks the segments.
func cleanRepoPath(p string) (string, error) {
	p = strings.Trim(p, "/")
	p = strings.TrimSuffix(p, ".git")
	p = strings.Trim(p, "/")

	segments := strings.Split(p, "/")
	if p == "" || len(segments) < 2 {
		return "", errors.New(errors.CodeInvalidIdentifier, "repository path must include an owner and a name")
	}
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return "", errors.Newf(errors.CodeInvalidIdentifier, "repository path %q contains an empty or relative segment", p)
		}
	}
	return p, nil
}

func hasDotSegment(p string) bool {
	for _, s := range strings.Split(p, "/") {
		if s == "." || s == ".." {
			return true
		}
	}
	return false
}

// canonicalHost lowercases host and drops the scheme's default port.
func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil || port != defaultPorts[scheme] {
		return host
	}
	if strings.Contains(h, ":") {
		return "[" + h + "]"
	}
	return h
}

func hasPort(host string) bool {
	_, _, err := net.SplitHostPort(host)
	return err == nil
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hostname(host string) string {
	if h, _, ok := strings.Cut(host, ":"); ok {
		return h
	}
	return host
}

// IsZero reports whether id is the zero Identifier.
func (id Identifier) IsZero() bool {
	return id.path == ""
}

// IsLocal reports whether id refers to a repository on the local
// filesystem.
func (id Identifier) IsLocal() bool {
	return id.scheme == "file"
}

// Host returns the lowercased host, including any port. It is empty for
// local repositories.
func (id Identifier) Host() string {
	return id.host
}

// Path returns the normalized repository path without a ".git" suffix.
func (id Identifier) Path() string {
	return id.path
}

// Key returns the cache key: host and path joined by a slash, or "file"
// followed by the absolute path for local repositories. A non-default port
// is part of the host. Equal remotes yield equal keys.
func (id Identifier) Key() string {
	if id.IsLocal() {
		return "file" + id.path
	}
	return id.host + "/" + id.path
}

// CloneURL returns the URL handed to the version-control tool.
func (id Identifier) CloneURL() string {
	return id.clone
}

// String returns a canonical, scheme-qualified form of id.
func (id Identifier) String() string {
	if id.IsLocal() {
		return "file://" + id.path
	}
	if hasPort(id.host) {
		return id.scheme + "://" + id.host + "/" + id.path
	}
	return "https://" + id.host + "/" + id.path
}

// DisplayName returns "owner/name", the last two path segments.
func (id Identifier) DisplayName() string {
	segments := strings.Split(id.path, "/")
	if len(segments) < 2 {
		return id.path
	}
	return strings.Join(segments[len(segments)-2:], "/")
}

// Equal reports whether id and other refer to the same repository.
func (id Identifier) Equal(other Identifier) bool {
	return id.Key() == other.Key()
}

// Permalink returns a web link to line of file at commit. Local repositories
// have no web view and yield an empty string.
func (id Identifier) Permalink(commit, file string, line int) string {
	if id.IsLocal() {
		return ""
	}

	base := "https://" + hostname(id.host) + "/" + id.path
	if hasPort(id.host) && (id.scheme == "https" || id.scheme == "http") {
		base = id.scheme + "://" + id.host + "/" + id.path
	}
	file = strings.TrimPrefix(file, "/")

	switch host := hostname(id.host); {
	case host == "gitlab.com" || strings.HasPrefix(host, "gitlab."):
		return fmt.Sprintf("%s/-/blob/%s/%s#L%d", base, commit, file, line)
	case host == "bitbucket.org":
		return fmt.Sprintf("%s/src/%s/%s#lines-%d", base, commit, file, line)
	default:
		return fmt.Sprintf("%s/blob/%s/%s#L%d", base, commit, file, line)
	}
}
