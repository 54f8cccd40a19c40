package tagging_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"nowa-go/internal/tagging"
)

func TestCleanTag(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Holiday", "holiday"},
		{"  Summer 2024  ", "summer2024"},
		{"Mom's B-day_party!", "momsb-day_party"},
		{"Zoë", "zo"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, tagging.CleanTag(tt.raw))
		})
	}
}

func TestCleanTags(t *testing.T) {
	got := tagging.CleanTags([]string{" Beach", "", "beach", "sun set", "##"})
	assert.Equal(t, []string{"beach", "sunset"}, got)
}

func TestIsThumbnail(t *testing.T) {
	assert.True(t, tagging.IsThumbnail("/src/Thumbs", "a.jpg"))
	assert.True(t, tagging.IsThumbnail("/src", "a_THUMB.jpg"))
	assert.False(t, tagging.IsThumbnail("/src/pics", "a.jpg"))
}

func TestTagsFromPath(t *testing.T) {
	base := filepath.FromSlash("/media/in")
	stop := []string{"Photos", "DCIM"}

	t.Run("file directly in base yields no tags", func(t *testing.T) {
		got := tagging.TagsFromPath(filepath.Join(base, "a.jpg"), base, stop)
		assert.Empty(t, got)
	})

	t.Run("components in order outermost first", func(t *testing.T) {
		got := tagging.TagsFromPath(filepath.Join(base, "Family", "Beach 2024", "a.jpg"), base, stop)
		assert.Equal(t, []string{"family", "beach2024"}, got)
	})

	t.Run("stop words dropped case-insensitively", func(t *testing.T) {
		got := tagging.TagsFromPath(filepath.Join(base, "photos", "DCIM", "Trip", "a.jpg"), base, stop)
		assert.Equal(t, []string{"trip"}, got)
	})

	t.Run("components that clean to nothing are dropped", func(t *testing.T) {
		got := tagging.TagsFromPath(filepath.Join(base, "!!!", "Trip", "a.jpg"), base, stop)
		assert.Equal(t, []string{"trip"}, got)
	})

	t.Run("nested folders with the same name yield one tag", func(t *testing.T) {
		got := tagging.TagsFromPath(filepath.Join(base, "Trip", "Day 1", "trip", "a.jpg"), base, stop)
		assert.Equal(t, []string{"trip", "day1"}, got)
	})

	t.Run("file outside base yields no tags", func(t *testing.T) {
		got := tagging.TagsFromPath(filepath.FromSlash("/elsewhere/x/a.jpg"), base, stop)
		assert.Empty(t, got)
	})
}

func TestFolderTags(t *testing.T) {
	base := filepath.FromSlash("/in")
	files := map[string][]string{
		".":            {filepath.Join(base, "a.jpg")},
		"Trip":         {filepath.Join(base, "Trip", "b.jpg"), filepath.Join(base, "Trip", "c.jpg")},
		"Trip/Day One": {filepath.Join(base, "Trip", "Day One", "d.jpg")},
	}
	got := tagging.FolderTags(files, base, nil)
	assert.Equal(t, map[string][]string{
		".":            {},
		"Trip":         {"trip"},
		"Trip/Day One": {"trip", "dayone"},
	}, got)
}

func TestFolderKey(t *testing.T) {
	assert.Equal(t, "card", tagging.FolderKey("card", "."))
	assert.Equal(t, "card/a/b", tagging.FolderKey("card", filepath.Join("a", "b")))

	root, rel := tagging.SplitFolderKey("card")
	assert.Equal(t, "card", root)
	assert.Equal(t, ".", rel)

	root, rel = tagging.SplitFolderKey("card/a/b")
	assert.Equal(t, "card", root)
	assert.Equal(t, "a/b", rel)
}
