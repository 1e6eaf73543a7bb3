package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"label-printer/internal/capture"
)

const (
	ContentTypeZip = "application/zip"
	Extension      = "zip"
)

// entries carry a fixed timestamp so identical input yields identical archives.
var entryModified = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type Entry struct {
	Name string
	Data []byte
}

// EntryName returns the archive name of the i-th (0-based) label.
func EntryName(i int) string {
	return fmt.Sprintf("label-%d.png", i+1)
}

// Build packages blobs into a zip archive, one entry per blob in input order.
func Build(blobs []capture.Blob) (capture.Blob, error) {
	var buffer bytes.Buffer
	w := zip.NewWriter(&buffer)

	for i, blob := range blobs {
		f, err := w.CreateHeader(&zip.FileHeader{
			Name:     EntryName(i),
			Method:   zip.Deflate,
			Modified: entryModified,
		})
		if err != nil {
			return capture.Blob{}, fmt.Errorf("failed to create archive entry %s: %w", EntryName(i), err)
		}
		if _, err := f.Write(blob.Data); err != nil {
			return capture.Blob{}, fmt.Errorf("failed to write archive entry %s: %w", EntryName(i), err)
		}
	}

	if err := w.Close(); err != nil {
		return capture.Blob{}, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return capture.Blob{
		Data:        buffer.Bytes(),
		ContentType: ContentTypeZip,
	}, nil
}

// Open reads every entry of an archive in stored order.
func Open(data []byte) ([]Entry, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", f.Name, err)
		}
		entries = append(entries, Entry{Name: f.Name, Data: content})
	}
	return entries, nil
}
