package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Preview is a displayable/transmittable representation of an accepted file.
// Images are held in memory as a data URI; videos keep an open file handle
// that the caller must release when the batch is discarded.
type Preview struct {
	DataURI string

	file *os.File

	mu       sync.Mutex
	released bool
}

// FilePath returns the path backing a video preview, or "" for images.
func (p *Preview) FilePath() string {
	if p.file == nil {
		return ""
	}
	return p.file.Name()
}

// Release frees any externally-referenced resource behind the preview.
// Safe to call more than once.
func (p *Preview) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// Encode produces the preview for one accepted item.
func Encode(item *Item) (*Preview, error) {
	switch item.Kind {
	case KindImage:
		data, err := os.ReadFile(item.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", item.Name, err)
		}
		uri := "data:" + item.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(data)
		return &Preview{DataURI: uri}, nil
	case KindVideo:
		f, err := os.Open(item.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", item.Name, err)
		}
		return &Preview{file: f}, nil
	}
	return nil, fmt.Errorf("unknown media kind %q", item.Kind)
}

// EncodeAll encodes previews for every item concurrently. Encoding is
// independent per file, so one failure never blocks the others; the joined
// error reports every file that could not be encoded. Items that succeeded
// keep their Preview set even when EncodeAll returns an error, so the caller
// can release them.
func EncodeAll(items []*Item) error {
	var wg sync.WaitGroup
	errs := make([]error, len(items))

	for i, item := range items {
		wg.Add(1)
		go func(i int, item *Item) {
			defer wg.Done()
			p, err := Encode(item)
			if err != nil {
				errs[i] = err
				return
			}
			item.Preview = p
		}(i, item)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// ReleaseAll releases every preview in the slice, keeping the first error.
func ReleaseAll(items []*Item) error {
	var first error
	for _, item := range items {
		if item.Preview == nil {
			continue
		}
		if err := item.Preview.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
