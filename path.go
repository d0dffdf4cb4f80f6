package s3cache

import "regexp"

var separatorRun = regexp.MustCompile(`/+`)

// ResolvePath maps a cache key to its object path. With an empty prefix the
// key is used verbatim; otherwise prefix and key are joined with "/" and every
// run of separators is collapsed to one.
func ResolvePath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return separatorRun.ReplaceAllString(prefix+"/"+key, "/")
}
