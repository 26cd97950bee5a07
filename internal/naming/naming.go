// Package naming derives storage keys: where an uploaded original goes and
// where each of its variations lives next to it.
package naming

import (
	"path"
	"strings"
)

// VariationKey returns the key of the named variation of original by
// inserting ".<variation>" before the extension, in the original's directory.
//
//	img/image.jpg + thumbnail -> img/image.thumbnail.jpg
//	custom.gif    + thumbnail -> custom.thumbnail.gif
func VariationKey(original, variation string) string {
	dir, file := path.Split(original)
	stem, ext := SplitExt(file)

	name := stem + "." + variation
	if ext != "" {
		name += "." + ext
	}
	return dir + name
}

// SplitExt splits a file name at its last dot. The extension is returned
// without the dot; a name without a dot has an empty extension.
func SplitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// Ext returns the lower-cased extension of a key.
func Ext(key string) string {
	_, ext := SplitExt(path.Base(key))
	return strings.ToLower(ext)
}
