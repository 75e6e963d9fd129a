package graph

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// DefaultFileLabelFormat renders the file path unchanged.
const DefaultFileLabelFormat = "$fullPath"

var fileLabelToken = regexp.MustCompile(`\$(\w+)(\{([^}]*)\})?`)

// FormatFileLabel expands the tokens of format for the file at fullPath:
//
//	$fullPath   the path as given
//	$fileName   base name without extension
//	$fileExt    extension without the dot
//	$path       containing directory
//	$path{N}    last N segments of the containing directory
//
// Unknown tokens and malformed arguments render as the containing directory.
func FormatFileLabel(format, fullPath string) string {
	if format == "" {
		format = DefaultFileLabelFormat
	}
	slashed := strings.ReplaceAll(fullPath, "\\", "/")
	dir := path.Dir(slashed)
	if dir == "." {
		dir = ""
	}
	base := path.Base(slashed)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return fileLabelToken.ReplaceAllStringFunc(format, func(tok string) string {
		m := fileLabelToken.FindStringSubmatch(tok)
		token, hasArg, arg := m[1], m[2] != "", m[3]

		switch {
		case token == "fullPath" && !hasArg:
			return fullPath
		case token == "fileName" && !hasArg:
			return name
		case token == "fileExt" && !hasArg:
			return strings.TrimPrefix(ext, ".")
		case token == "path" && hasArg:
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return dir
			}
			return lastSegments(dir, n)
		default:
			return dir
		}
	})
}

func lastSegments(dir string, n int) string {
	if dir == "" {
		return ""
	}
	segs := strings.Split(strings.Trim(dir, "/"), "/")
	if n >= len(segs) {
		return dir
	}
	return strings.Join(segs[len(segs)-n:], "/")
}
