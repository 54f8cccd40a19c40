package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// exifLayout is the EXIF 2.x date format.
const exifLayout = "2006:01:02 15:04:05"

var errNoCaptureTime = errors.New("no DateTimeOriginal tag")

// ReadCaptureTime decodes the EXIF block of the file at path and returns its
// DateTimeOriginal in the local zone.
func ReadCaptureTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding exif: %w", err)
	}
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, errNoCaptureTime
	}
	raw, err := tag.StringVal()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading DateTimeOriginal: %w", err)
	}
	return ParseExifTime(raw)
}

// ParseExifTime parses "YYYY:MM:DD HH:MM:SS" in the local zone.
func ParseExifTime(raw string) (time.Time, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "\x00")
	t, err := time.ParseInLocation(exifLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing exif time %q: %w", raw, err)
	}
	return t, nil
}
