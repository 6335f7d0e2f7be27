// Package safety implements the conservative filename filter described in
// spec.md §4.1: strip leading slashes, then reject any remaining ".."
// substring. It deliberately does not canonicalize or resolve symlinks — see
// spec.md §9 "Path canonicalization".
package safety

import "strings"

// Sanitize returns the safe form of requested and true, or ("", false) if
// requested must be rejected. The resolved filesystem path is
// rootDir + "/" + safeName.
func Sanitize(requested string) (string, bool) {
	stripped := strings.TrimLeft(requested, "/")
	if strings.Contains(stripped, "..") {
		return "", false
	}
	return stripped, true
}
