// Package tagging derives tags from source folder names and runs the
// CSV review workflow that lets a person override them.
package tagging

import (
	"path/filepath"
	"sort"
	"strings"
)

// ThumbnailTag is applied automatically when "thumb" appears in a source
// directory or filename.
const ThumbnailTag = "thumbnail"

// CleanTag normalizes a raw folder name or tag token: trimmed, lower-cased,
// and stripped to [a-z0-9_-]. The result may be empty.
func CleanTag(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, strings.ToLower(strings.TrimSpace(raw)))
}

// CleanTags cleans every token and drops empty results and repeats,
// preserving first-seen order.
func CleanTags(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		t := CleanTag(r)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// IsThumbnail reports whether a source directory or filename marks the file as
// a thumbnail.
func IsThumbnail(sourceDir, filename string) bool {
	return strings.Contains(strings.ToLower(sourceDir), "thumb") ||
		strings.Contains(strings.ToLower(filename), "thumb")
}

// TagsFromPath returns one tag per directory component strictly between
// baseRoot and the file, outermost first. Components that clean to nothing
// or to a stop word are dropped, as are repeats of an outer component, so the
// list survives a review round trip. A file outside baseRoot yields no tags.
func TagsFromPath(filePath, baseRoot string, stopWords []string) []string {
	rel, err := filepath.Rel(baseRoot, filepath.Dir(filePath))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{}
	}

	stop := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}

	tags := []string{}
	seen := make(map[string]struct{})
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cleaned := CleanTag(part)
		if cleaned == "" {
			continue
		}
		if _, ok := stop[cleaned]; ok {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		tags = append(tags, cleaned)
	}
	return tags
}

// FolderTags computes the tags for each relative folder key from the first
// file listed under it.
func FolderTags(filesByFolder map[string][]string, baseRoot string, stopWords []string) map[string][]string {
	folders := make([]string, 0, len(filesByFolder))
	for f := range filesByFolder {
		folders = append(folders, f)
	}
	sort.Strings(folders)

	result := make(map[string][]string, len(folders))
	for _, folder := range folders {
		files := filesByFolder[folder]
		if len(files) == 0 {
			result[folder] = []string{}
			continue
		}
		result[folder] = TagsFromPath(files[0], baseRoot, stopWords)
	}
	return result
}

// FolderKey builds the review key for a relative folder under a named root:
// rootName for ".", else rootName/rel with forward slashes.
func FolderKey(rootName, relFolder string) string {
	if relFolder == "." || relFolder == "" {
		return rootName
	}
	return rootName + "/" + filepath.ToSlash(relFolder)
}

// SplitFolderKey is the inverse of FolderKey. The relative folder is "." for a
// bare root name.
func SplitFolderKey(key string) (rootName, relFolder string) {
	rootName, relFolder, ok := strings.Cut(key, "/")
	if !ok || relFolder == "" {
		return rootName, "."
	}
	return rootName, relFolder
}
