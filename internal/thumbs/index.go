package thumbs

import (
	"encoding/json"
	"fmt"
	"os"
)

// IndexFilename is the name of the index file written next to the images.
const IndexFilename = "thumbnails_index.json"

// Index maps sighting timestamps (HH:MM:SS.mmm) to thumbnail image
// filenames relative to the thumbnail directory.
type Index map[string]string

// LoadIndex reads an index file. A missing file yields an empty index, not
// an error, so the server can start before any thumbnails exist.
func LoadIndex(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("thumbs: read index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("thumbs: parse index: %w", err)
	}
	return idx, nil
}

// Save writes the index to path as indented JSON.
func (idx Index) Save(path string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("thumbs: encode index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("thumbs: write index: %w", err)
	}
	return nil
}

// Lookup returns the thumbnail filename for a timestamp, or "" when no
// thumbnail was generated for it.
func (idx Index) Lookup(timestamp string) string {
	return idx[timestamp]
}
