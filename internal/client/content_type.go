package client

import (
	"mime"
	"path"
	"slices"
	"strings"
)

var knownContentTypes = map[string]string{
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".xml":  "application/xml",
}

// ContentTypeByName maps a file name to its content type. Scanner formats are
// resolved without the system mime table, which often lacks image/tiff.
func ContentTypeByName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := knownContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// HasKnownExtension reports whether name ends in one of the (lowercase,
// dotless) extensions.
func HasKnownExtension(name string, knownExtensions []string) bool {
	nameParts := strings.Split(name, ".")
	if len(nameParts) < 2 {
		return false
	}
	return slices.Contains(knownExtensions, strings.ToLower(nameParts[len(nameParts)-1]))
}
