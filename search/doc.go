// Package search finds marker lines, such as TODO comments, in the tracked
// files of a working copy.
//
// Two drivers implement Driver. RipgrepDriver streams matches from the rg
// binary and is the default for production use. NativeDriver walks the
// go-git index in process and needs no external tools.
//
// Both yield matches lazily in a deterministic order:
//
//	patterns, err := search.NewPatterns([]string{"TODO", "FIXME"}, false)
//	if err != nil {
//	    return err
//	}
//	for m, err := range driver.Find(ctx, path, patterns) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Printf("%s:%d: %s\n", m.File, m.Line, m.Text)
//	}
package search
