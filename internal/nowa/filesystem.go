package nowa

// FilesystemManager abstracts discovery and hashing of source files.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path and stats it.
	// A missing path fails with ErrNotFound.
	Resolve(rawPath string) (*Path, error)

	// FindMedia walks root recursively and returns every supported media
	// file, skipping hidden entries and ignored patterns, sorted by path.
	FindMedia(root *Path) ([]*Path, error)

	// Hash returns the content digest of the file.
	Hash(path *Path) (string, error)
}
