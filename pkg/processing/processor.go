package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

// Options configures the processor
type Options struct {
	JPEGQuality    int
	PNGCompression int // zlib style 0..9
	BoxWidth       int
	DefaultColor   string
	Palette        []string
	FontPath       string
	FontSize       float64
	MinSize        types.Dimensions
	MaxSize        types.Dimensions
}

// DefaultOptions returns the stock processor settings
func DefaultOptions() Options {
	return Options{
		JPEGQuality:    95,
		PNGCompression: 6,
		BoxWidth:       3,
		DefaultColor:   "red",
		Palette:        []string{"red", "blue", "green", "yellow", "purple", "orange", "cyan", "magenta", "white", "black"},
		FontPath:       "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		FontSize:       16,
		MinSize:        types.Dimensions{Width: 10, Height: 10},
		MaxSize:        types.Dimensions{Width: 10000, Height: 10000},
	}
}

// Processor resizes and annotates single images. It is safe for concurrent use.
type Processor struct {
	opts  Options
	fonts *fontLoader
}

// NewProcessor creates a new image processor
func NewProcessor(opts Options) *Processor {
	return &Processor{
		opts:  opts,
		fonts: newFontLoader(opts.FontPath, opts.FontSize),
	}
}

// Options returns the processor settings
func (p *Processor) Options() Options {
	return p.opts
}

// Resize writes source to dest at exactly size. With maintainAspect the image is
// fitted without upscaling and centered on a black canvas, otherwise it is stretched.
func (p *Processor) Resize(source, dest string, size types.Dimensions, maintainAspect bool) types.Result[types.ResizeResult] {
	if err := p.ValidateSize(size); err != nil {
		return types.Failure[types.ResizeResult](err)
	}

	img, err := p.LoadImageSmart(source)
	if err != nil {
		return types.Failure[types.ResizeResult](err)
	}
	b := img.Bounds()
	original := types.Dimensions{Width: b.Dx(), Height: b.Dy()}

	var out *image.NRGBA
	if maintainAspect {
		out = Letterbox(img, size)
	} else {
		out = imaging.Resize(img, size.Width, size.Height, imaging.Lanczos)
	}

	if err := p.SaveImage(out, dest); err != nil {
		return types.Failure[types.ResizeResult](err)
	}

	return types.Success(types.ResizeResult{
		OriginalSize: original,
		NewSize:      types.Dimensions{Width: out.Bounds().Dx(), Height: out.Bounds().Dy()},
		OutputPath:   dest,
	})
}

// Letterbox fits img inside size keeping its aspect ratio and composites it centered
// on an opaque black canvas of exactly size. Transparent source pixels come out black.
func Letterbox(img image.Image, size types.Dimensions) *image.NRGBA {
	fitted := imaging.Fit(img, size.Width, size.Height, imaging.Lanczos)
	fb := fitted.Bounds()
	canvas := imaging.New(size.Width, size.Height, color.NRGBA{0, 0, 0, 255})
	left := (size.Width - fb.Dx()) / 2
	top := (size.Height - fb.Dy()) / 2
	return imaging.Overlay(canvas, fitted, image.Pt(left, top), 1.0)
}

// ValidateSize checks a target size against the configured bounds
func (p *Processor) ValidateSize(size types.Dimensions) error {
	lo, hi := p.opts.MinSize, p.opts.MaxSize
	if size.Width < lo.Width || size.Height < lo.Height {
		return types.InvalidArgument("size", size.String(), fmt.Sprintf("below minimum %s", lo))
	}
	if size.Width > hi.Width || size.Height > hi.Height {
		return types.InvalidArgument("size", size.String(), fmt.Sprintf("above maximum %s", hi))
	}
	return nil
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, types.InvalidArgument("url", imageURL, err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, types.InvalidArgument("url", imageURL, "only http and https are supported")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return nil, types.IOError("download", imageURL, err)
	}
	req.Header.Set("User-Agent", "Image-Preprocessor/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, types.IOError("download", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.IOError("download", imageURL, fmt.Errorf("HTTP %d %s", resp.StatusCode, resp.Status))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, types.IOError("download", imageURL, fmt.Errorf("not an image (Content-Type: %s)", contentType))
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.IOError("download", imageURL, err)
	}

	img, err := decodeImageFromBytes(imageData)
	if err != nil {
		return nil, types.IOError("decode", imageURL, err)
	}
	return img, nil
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.IOError("open", path, err)
	}
	img, err := decodeImageFromBytes(data)
	if err != nil {
		return nil, types.IOError("decode", path, err)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("unknown or unsupported image format")
}

// SaveImage encodes img in the format implied by the extension of path
func (p *Processor) SaveImage(img image.Image, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".webp":
		f, err := os.Create(path)
		if err != nil {
			return types.IOError("save", path, err)
		}
		opts := &webp.Options{Quality: float32(p.opts.JPEGQuality)}
		if err := webp.Encode(f, img, opts); err != nil {
			f.Close()
			return types.IOError("save", path, err)
		}
		if err := f.Close(); err != nil {
			return types.IOError("save", path, err)
		}
		return nil
	case ".png":
		if err := imaging.Save(img, path, imaging.PNGCompressionLevel(pngLevel(p.opts.PNGCompression))); err != nil {
			return types.IOError("save", path, err)
		}
		return nil
	case ".jpg", ".jpeg":
		if err := imaging.Save(img, path, imaging.JPEGQuality(p.opts.JPEGQuality)); err != nil {
			return types.IOError("save", path, err)
		}
		return nil
	case ".bmp", ".tif", ".tiff", ".gif":
		if err := imaging.Save(img, path); err != nil {
			return types.IOError("save", path, err)
		}
		return nil
	default:
		return types.InvalidArgument("output format", ext, "use jpg, jpeg, png, bmp, tif, tiff, gif or webp")
	}
}

// pngLevel maps a zlib style 0..9 level onto the encoder's presets
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
