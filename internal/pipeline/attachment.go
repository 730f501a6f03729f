package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Attachment is a source file uploaded with a message. Size must be known without reading the
// content so oversized files are refused before any transfer.
type Attachment interface {
	Filename() string
	Size() int64
	Read(ctx context.Context) ([]byte, error)
}

// BytesAttachment is an in-memory Attachment. DeclaredSize overrides len(Data) when positive, the
// way chat platforms announce an upload before it is downloaded.
type BytesAttachment struct {
	Name         string
	Data         []byte
	DeclaredSize int64
}

// Filename returns the uploaded file name.
func (attachment BytesAttachment) Filename() string {
	return attachment.Name
}

// Size returns the declared size or the data length.
func (attachment BytesAttachment) Size() int64 {
	if attachment.DeclaredSize > 0 {
		return attachment.DeclaredSize
	}
	return int64(len(attachment.Data))
}

// Read returns the content.
func (attachment BytesAttachment) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return attachment.Data, nil
}

// FileAttachment reads a local file lazily.
type FileAttachment struct {
	path string
	size int64
}

// NewFileAttachment stats path without reading it.
func NewFileAttachment(path string) (FileAttachment, error) {
	fileInformation, statErr := os.Stat(path)
	if statErr != nil {
		return FileAttachment{}, fmt.Errorf("stat source file %s: %w", path, statErr)
	}
	if fileInformation.IsDir() {
		return FileAttachment{}, fmt.Errorf("source file %s is a directory", path)
	}
	return FileAttachment{path: path, size: fileInformation.Size()}, nil
}

// Filename returns the base name of the file.
func (attachment FileAttachment) Filename() string {
	return filepath.Base(attachment.path)
}

// Size returns the size reported by stat.
func (attachment FileAttachment) Size() int64 {
	return attachment.size
}

// Read loads the file.
func (attachment FileAttachment) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, readErr := os.ReadFile(attachment.path)
	if readErr != nil {
		return nil, fmt.Errorf("read source file %s: %w", attachment.path, readErr)
	}
	return data, nil
}

var (
	_ Attachment = BytesAttachment{}
	_ Attachment = FileAttachment{}
)
