package nowa

import "time"

// Mode selects how a source file reaches the archive.
type Mode string

const (
	ModeCopy Mode = "copy"
	ModeMove Mode = "move"
)

// Vault is the physical, content-placed archive on disk.
// It never touches the metadata store.
type Vault interface {
	// Place computes the destination for a new file:
	// root/YYYY/MM/<filename>, or <stem>_<digest8><ext> when that is taken.
	// YYYY/MM come from capture when present, else fileTime.
	Place(filename, digest string, capture *time.Time, fileTime time.Time) (string, error)

	// Commit copies or moves src to dest, creating directories as needed.
	// Failures wrap ErrIO.
	Commit(src, dest string, mode Mode) error

	// Stat returns the size in bytes of an archived file.
	Stat(dest string) (int64, error)

	// Relative splits an absolute archive path into the archive-relative
	// directory (forward slashes) and the filename.
	Relative(dest string) (dir, filename string, err error)

	// Root returns the absolute archive root.
	Root() string
}
