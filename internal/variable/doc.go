// Package variable implements the URL variable engine of a download job.
//
// The package implements:
//   - Variables with a tagged extraction rule (literal, start/end delimited, pattern)
//   - An ordered, name-keyed Store with unique names
//   - The extraction engine that derives a Match from fetched content
//   - Template expansion of {name} references in dependency order, with
//     cycle and depth guards
//   - Edit sessions (clone, edit, commit or discard) with a cancel-and-restart
//     evaluation scheduler for live feedback
//
// Templates reference variables as {name}. The names {category} and {appname}
// are reserved and expand to the owning job's metadata.
//
// Usage:
//
//	exp := variable.NewExpander(store,
//	    variable.WithJobInfo("Browsers", "Firefox"),
//	    variable.WithContentFunc(fetchPage),
//	)
//	url, err := exp.Expand(ctx, "https://example.org/{version}/setup.exe")
package variable
