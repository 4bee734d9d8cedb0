// Package git is the version-control boundary of the scan pipeline.
//
// It provides three things:
//
//   - Identifier, a validated and normalized reference to a remote
//     repository. Textually different spellings of the same remote
//     (https, scp-like ssh, trailing ".git", mixed case hosts) normalize
//     to the same Key, which the cache uses to name working copies.
//   - Driver, the narrow interface the pipeline uses to clone, update and
//     attribute lines. All parsing of tool output happens behind it.
//   - Two Driver implementations. CLIDriver shells out to the git binary
//     through the exec package and is the production default. NativeDriver
//     is built on go-git and needs no external binary.
//
// Driver errors are PlatformErrors. A line that history cannot account for
// is reported with CodeNotAttributable so callers can tell it apart from an
// operation that failed.
//
// Repository wraps a go-git repository opened through a billy filesystem and
// exposes the few read operations the pipeline needs, such as listing
// tracked files.
package git
