package storage

import "strings"

// FolderID maps a course display name to its folder id, an object key
// prefix ending in "/".
func FolderID(name string) string {
	return sanitizeName(name) + "/"
}

// ObjectKey joins a folder id and a file display name into an object
// key.
func ObjectKey(folderID, fileName string) string {
	return folderID + sanitizeName(fileName)
}

// sanitizeName makes a display name safe to use as a single key
// segment. Portal course titles occasionally carry full-width spaces or
// zero-width characters pasted in from office documents.
func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '\u3000': // full-width space
			return ' '
		case '\u200B', '\uFEFF': // zero-width space and BOM
			return -1
		case '/', '\\':
			return '-'
		default:
			return r
		}
	}, name)
	return strings.TrimSpace(name)
}
