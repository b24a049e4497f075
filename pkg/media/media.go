package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind declares how a submitted file should be validated and previewed.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ParseKind converts a user-supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image", "img":
		return KindImage, nil
	case "video", "vid":
		return KindVideo, nil
	}
	return "", fmt.Errorf("unknown media kind %q (want image or video)", s)
}

const (
	// MaxImageBytes is the per-file size cap for images.
	MaxImageBytes = 10 << 20
	// MaxVideoBytes is the per-file size cap for videos.
	MaxVideoBytes = 100 << 20
	// MaxImageBatch caps how many images one submission may carry.
	MaxImageBatch = 10
)

var imageMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var videoMIMETypes = map[string]bool{
	"video/mp4":  true,
	"video/webm": true,
	"video/ogg":  true,
}

// mimeByExtension maps the extensions we accept to their declared MIME type.
// Deliberately not mime.TypeByExtension: that consults the host OS tables and
// would make validation platform-dependent.
var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".ogv":  "video/ogg",
}

// Item is one accepted media file within a batch.
type Item struct {
	Kind      Kind
	Path      string
	Name      string
	SizeBytes int64
	MIMEType  string

	// Preview is populated by EncodeAll before analysis starts.
	Preview *Preview
}

// ValidationError reports a file (or batch) that failed admission,
// carrying the offending limit so callers can print something useful.
type ValidationError struct {
	Path   string
	Reason string
	Limit  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s (limit: %s)", e.Reason, e.Limit)
	}
	return fmt.Sprintf("%s: %s (limit: %s)", e.Path, e.Reason, e.Limit)
}

// Validate inspects one candidate file against the constraints for the
// declared kind. Pure metadata inspection: no file contents are read and
// no network activity happens here.
func Validate(path string, kind Kind) (*Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: "file not accessible", Limit: "existing regular file"}
	}
	if info.IsDir() {
		return nil, &ValidationError{Path: path, Reason: "is a directory", Limit: "existing regular file"}
	}

	mimeType, ok := mimeByExtension[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, &ValidationError{
			Path:   path,
			Reason: "unrecognized file extension",
			Limit:  allowedList(kind),
		}
	}

	var maxBytes int64
	var allowed map[string]bool
	switch kind {
	case KindImage:
		maxBytes, allowed = MaxImageBytes, imageMIMETypes
	case KindVideo:
		maxBytes, allowed = MaxVideoBytes, videoMIMETypes
	default:
		return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("unknown media kind %q", kind), Limit: "image or video"}
	}

	if !allowed[mimeType] {
		return nil, &ValidationError{
			Path:   path,
			Reason: fmt.Sprintf("invalid type %s", mimeType),
			Limit:  allowedList(kind),
		}
	}
	if info.Size() > maxBytes {
		return nil, &ValidationError{
			Path:   path,
			Reason: fmt.Sprintf("file too large (%d bytes)", info.Size()),
			Limit:  fmt.Sprintf("%dMB", maxBytes/(1<<20)),
		}
	}

	return &Item{
		Kind:      kind,
		Path:      path,
		Name:      filepath.Base(path),
		SizeBytes: info.Size(),
		MIMEType:  mimeType,
	}, nil
}

// ValidateBatch admits a whole submission or none of it. The first violation
// fails the batch before any preview encoding or network activity starts.
func ValidateBatch(paths []string, kind Kind) ([]*Item, error) {
	if len(paths) == 0 {
		return nil, &ValidationError{Reason: "no files submitted", Limit: "at least 1 file"}
	}
	if kind == KindImage && len(paths) > MaxImageBatch {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("%d images submitted", len(paths)),
			Limit:  fmt.Sprintf("maximum %d images allowed", MaxImageBatch),
		}
	}
	if kind == KindVideo && len(paths) > 1 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("%d videos submitted", len(paths)),
			Limit:  "one video per submission",
		}
	}

	items := make([]*Item, 0, len(paths))
	for _, p := range paths {
		item, err := Validate(p, kind)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func allowedList(kind Kind) string {
	var allowed map[string]bool
	if kind == KindVideo {
		allowed = videoMIMETypes
	} else {
		allowed = imageMIMETypes
	}
	types := make([]string, 0, len(allowed))
	for t := range allowed {
		types = append(types, t)
	}
	// Stable order for error messages and tests.
	sort.Strings(types)
	return "allowed: " + strings.Join(types, ", ")
}
