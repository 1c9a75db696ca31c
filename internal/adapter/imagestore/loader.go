// Package imagestore loads parcel imagery from local disk or Google Cloud
// Storage.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// MaxImageBytes bounds a single image.
const MaxImageBytes = 20 << 20

const gcsScheme = "gs://"

// ObjectOpener opens a bucket object for reading and reports its content
// type.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, string, error)
}

// Loader implements domain.ImageLoader. Relative paths resolve under root;
// gs://bucket/object references go through objects.
type Loader struct {
	root    string
	objects ObjectOpener
}

// NewLoader creates a loader. objects may be nil when gs:// references are
// not used.
func NewLoader(root string, objects ObjectOpener) *Loader {
	return &Loader{root: root, objects: objects}
}

// Load reads ref and detects its MIME type.
func (l *Loader) Load(ctx context.Context, ref string) (domain.Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Image{}, fmt.Errorf("%w: empty image reference", domain.ErrValidation)
	}
	if strings.HasPrefix(ref, gcsScheme) {
		return l.loadObject(ctx, ref)
	}
	return l.loadFile(ref)
}

func (l *Loader) loadFile(ref string) (domain.Image, error) {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.root, filepath.Clean(string(filepath.Separator)+path))
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Image{}, fmt.Errorf("image %q: %w", ref, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Image{}, fmt.Errorf("open image %q: %w", ref, err)
	}
	defer f.Close()
	return readImage(f, "", ref)
}

func (l *Loader) loadObject(ctx context.Context, ref string) (domain.Image, error) {
	if l.objects == nil {
		return domain.Image{}, fmt.Errorf("%w: no object storage configured for %q", domain.ErrCollaborator, ref)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(ref, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return domain.Image{}, fmt.Errorf("%w: malformed object reference %q", domain.ErrValidation, ref)
	}
	r, contentType, err := l.objects.Open(ctx, bucket, object)
	if err != nil {
		return domain.Image{}, err
	}
	defer r.Close()
	return readImage(r, contentType, ref)
}

func readImage(r io.Reader, contentType, ref string) (domain.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return domain.Image{}, fmt.Errorf("read image %q: %w", ref, err)
	}
	if len(data) > MaxImageBytes {
		return domain.Image{}, fmt.Errorf("%w: image %q exceeds %d bytes", domain.ErrValidation, ref, MaxImageBytes)
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return domain.Image{}, fmt.Errorf("%w: %q is not an image (%s)", domain.ErrValidation, ref, contentType)
	}
	return domain.Image{Data: data, MIMEType: contentType}, nil
}

// GCS opens objects with a Cloud Storage client.
type GCS struct {
	client *storage.Client
}

// NewGCS creates a Cloud Storage client using application default
// credentials.
func NewGCS(ctx context.Context) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) Open(ctx context.Context, bucket, object string) (io.ReadCloser, string, error) {
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, "", fmt.Errorf("object gs://%s/%s: %w", bucket, object, domain.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: open gs://%s/%s: %w", domain.ErrCollaborator, bucket, object, err)
	}
	return r, r.Attrs.ContentType, nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}
