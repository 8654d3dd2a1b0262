// Package thumbnail gates and stores recipe thumbnail images.
package thumbnail

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/recipebook/recipebook/internal/apperror"
)

// Store persists thumbnail images under a file name and returns the path
// recorded for the recipe.
type Store interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
	Ping(ctx context.Context) error
}

// allowed maps accepted MIME types to their file extensions. The first one
// is used when the upload's own extension does not match the type.
var allowed = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
}

// Image is a thumbnail that passed the media gate.
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Check verifies the declared content type is JPEG or PNG, that the bytes
// actually are of that type, and that the image is within maxSize bytes.
// filename is the name the client uploaded; its extension is kept when it
// agrees with the type.
func Check(declared, filename string, data []byte, maxSize int64) (*Image, error) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return nil, apperror.New(apperror.KindUnsupportedMedia, "thumbnail must be a JPEG or PNG image")
	}
	mediaType = strings.ToLower(mediaType)

	exts, ok := allowed[mediaType]
	if !ok {
		return nil, apperror.New(apperror.KindUnsupportedMedia,
			fmt.Sprintf("thumbnail type %q is not supported, use JPEG or PNG", mediaType))
	}

	if len(data) == 0 {
		return nil, apperror.New(apperror.KindInvalidInput, "thumbnail is empty")
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, apperror.New(apperror.KindInvalidInput,
			fmt.Sprintf("thumbnail exceeds %d bytes", maxSize))
	}

	if detected := mimetype.Detect(data); !detected.Is(mediaType) {
		return nil, apperror.New(apperror.KindUnsupportedMedia,
			fmt.Sprintf("thumbnail content does not match declared type %q", mediaType))
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !slices.Contains(exts, ext) {
		ext = exts[0]
	}

	return &Image{Data: data, ContentType: mediaType, Ext: ext}, nil
}

// FileName builds the stored name of a thumbnail from the recipe's unique
// suffix. Anything but lower-case letters and digits is dropped.
func FileName(suffix, ext string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(suffix) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		b.WriteString("thumbnail")
	}
	return b.String() + ext
}
