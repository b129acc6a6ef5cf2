package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// MemoryRefPrefix marks references to images that were supplied as bytes
// rather than loaded from a file.
const MemoryRefPrefix = "mem:"

// Buffer is a decoded, immutable source image plus the reference it was
// loaded from.
//
// Image is always a freshly allocated *image.NRGBA (4 channels, straight
// alpha) with bounds starting at (0,0). Nothing in this module writes to a
// Buffer's pixels after it has been created.
type Buffer struct {
	// Ref is the file path, or MemoryRefPrefix followed by a uuid for
	// in-memory uploads. Passing Ref back to Store.Get returns this Buffer.
	Ref string

	// Image holds the pixels.
	Image *image.NRGBA

	// Format is the registered decoder name ("png", "jpeg", ...).
	Format string
}

// Width returns the image width in pixels.
func (b *Buffer) Width() int { return b.Image.Bounds().Dx() }

// Height returns the image height in pixels.
func (b *Buffer) Height() int { return b.Image.Bounds().Dy() }

// Size returns the dimensions as a geometry.Size.
func (b *Buffer) Size() geometry.Size {
	return geometry.Size{Width: float64(b.Width()), Height: float64(b.Height())}
}

// Store provides thread-safe caching of decoded images keyed by reference.
//
// File-backed images are cached by the exact path string given to Load.
// In-memory images get a generated "mem:<uuid>" reference from Decode so
// that later calls (rectify, re-edit, code extraction) can refer to them the
// same way as files.
//
// Store is safe for concurrent use by multiple goroutines. Cached images
// remain in memory until Evict or Clear is called.
type Store struct {
	mu     sync.RWMutex
	images map[string]*Buffer
}

// NewStore creates and initializes a new empty image store.
func NewStore() *Store {
	return &Store{
		images: make(map[string]*Buffer),
	}
}

// Load retrieves an image from the cache or decodes it from disk.
//
// Supported formats are PNG, JPEG, GIF, BMP, TIFF and WebP. JPEGs are
// turned upright according to their EXIF orientation. Any open or decode
// failure is reported as scanerr.ErrDecode.
func (s *Store) Load(path string) (*Buffer, error) {
	s.mu.RLock()
	if buf, ok := s.images[path]; ok {
		s.mu.RUnlock()
		return buf, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scanerr.New(scanerr.ErrDecode, "open "+path, err)
	}

	img, format, err := decodeOriented(data)
	if err != nil {
		return nil, scanerr.New(scanerr.ErrDecode, "decode "+path, err)
	}

	buf, err := newBuffer(path, img, format)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.images[path] = buf
	s.mu.Unlock()

	return buf, nil
}

// Decode decodes image bytes and caches the result under a new memory
// reference.
func (s *Store) Decode(data []byte) (*Buffer, error) {
	img, format, err := decodeOriented(data)
	if err != nil {
		return nil, scanerr.New(scanerr.ErrDecode, "decode bytes", err)
	}

	buf, err := newBuffer(MemoryRefPrefix+uuid.NewString(), img, format)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.images[buf.Ref] = buf
	s.mu.Unlock()

	return buf, nil
}

// DecodeBase64 decodes a base64 string (optionally a data: URL) holding
// image bytes.
func (s *Store) DecodeBase64(data string) (*Buffer, error) {
	if i := strings.Index(data, ";base64,"); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, scanerr.New(scanerr.ErrDecode, "decode base64", err)
	}
	return s.Decode(raw)
}

// Get resolves a reference: cached memory images by ref, files via Load.
func (s *Store) Get(ref string) (*Buffer, error) {
	if strings.HasPrefix(ref, MemoryRefPrefix) {
		s.mu.RLock()
		buf, ok := s.images[ref]
		s.mu.RUnlock()
		if !ok {
			return nil, scanerr.Newf(scanerr.ErrDecode, "get "+ref, "unknown in-memory image")
		}
		return buf, nil
	}
	return s.Load(ref)
}

// Put caches an already decoded image under a new memory reference. The
// image is copied so the caller may keep mutating its own value.
func (s *Store) Put(img image.Image) (*Buffer, error) {
	buf, err := newBuffer(MemoryRefPrefix+uuid.NewString(), img, "memory")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.images[buf.Ref] = buf
	s.mu.Unlock()

	return buf, nil
}

// Clear removes all images from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	s.images = make(map[string]*Buffer)
	s.mu.Unlock()
}

// Evict removes a specific image from the store by its reference.
func (s *Store) Evict(ref string) {
	s.mu.Lock()
	delete(s.images, ref)
	s.mu.Unlock()
}

// Len returns the number of cached images.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// decodeOriented decodes data and applies its EXIF orientation, so phone
// photos are detected and rectified upright.
func decodeOriented(data []byte) (image.Image, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

func newBuffer(ref string, img image.Image, format string) (*Buffer, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, scanerr.Newf(scanerr.ErrDecode, "decode "+ref, "image has no pixels (%dx%d)", b.Dx(), b.Dy())
	}
	// imaging.Clone always returns a new NRGBA rooted at (0,0).
	return &Buffer{Ref: ref, Image: imaging.Clone(img), Format: format}, nil
}

// ImageInfo contains metadata about a loaded image.
type ImageInfo struct {
	// Ref is the reference to pass to subsequent document_* tools.
	Ref string `json:"ref"`

	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the decoder that read the image: "png", "jpeg", "gif", "bmp",
	// "tiff", "webp", or "memory" for images handed over already decoded.
	Format string `json:"format"`

	// FileSizeBytes is the size of the image file on disk in bytes, 0 for
	// in-memory images.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image into the store and returns its metadata.
func LoadImageInfo(store *Store, ref string) (*ImageInfo, error) {
	buf, err := store.Get(ref)
	if err != nil {
		return nil, err
	}

	info := &ImageInfo{
		Ref:    buf.Ref,
		Width:  buf.Width(),
		Height: buf.Height(),
		Format: buf.Format,
	}

	if !strings.HasPrefix(ref, MemoryRefPrefix) {
		stat, err := os.Stat(filepath.Clean(ref))
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		info.FileSizeBytes = stat.Size()
	}

	return info, nil
}
