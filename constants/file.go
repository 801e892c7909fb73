package constants

import "strings"

// AllowedExtensions holds the allowed file extensions for report uploads.
// Jobs operate on one PDF each; images are produced by the splitter, never
// accepted as input.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// AllowedExt checks whether a (possibly dotted) extension is accepted.
func AllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
