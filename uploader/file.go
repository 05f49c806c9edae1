package uploader

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// File is a local file chosen for upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.ReaderAt
}

// OpenFile opens path for upload. The caller closes the returned file.
func OpenFile(path string) (File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return File{}, nil, fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	return File{
		Name:        name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Size:        info.Size(),
		Content:     f,
	}, f, nil
}
