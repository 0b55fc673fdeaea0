// Package analyzer reports the geometry of the images in a dataset directory
// without decoding their pixels.
package analyzer

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-preprocessor/internal/utils"
	"github.com/menta2k/image-preprocessor/pkg/types"
)

// Analyzer inspects image headers
type Analyzer struct {
	config Config
}

// Config holds configuration for the analyzer
type Config struct {
	SupportedFormats []string
	// MinSize flags images that are smaller in either dimension.
	MinSize types.Dimensions
}

// New creates a new Analyzer
func New(config Config) *Analyzer {
	return &Analyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	File        string  `json:"file"`
	Format      string  `json:"format"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// Size returns the image dimensions
func (i ImageInfo) Size() types.Dimensions {
	return types.Dimensions{Width: i.Width, Height: i.Height}
}

// Report summarizes a dataset directory
type Report struct {
	Images   []ImageInfo        `json:"images"`
	Failed   []types.FailedFile `json:"failed"`
	Total    int                `json:"total"`
	Formats  map[string]int     `json:"formats"`
	Smallest types.Dimensions   `json:"smallest"`
	Largest  types.Dimensions   `json:"largest"`
	// TooSmall lists images below the configured minimum size.
	TooSmall []string `json:"too_small"`
}

// GetImageInfo reads the header of the image at path
func (a *Analyzer) GetImageInfo(path string) (ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, types.IOError("open", path, err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return ImageInfo{}, types.IOError("decode", path, err)
	}

	info := ImageInfo{
		File:   filepath.Base(path),
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Area:   cfg.Width * cfg.Height,
	}
	if cfg.Height > 0 {
		info.AspectRatio = float64(cfg.Width) / float64(cfg.Height)
	}
	return info, nil
}

// ValidateImage checks an image against the minimum size
func (a *Analyzer) ValidateImage(info ImageInfo) error {
	lo := a.config.MinSize
	if info.Width < lo.Width || info.Height < lo.Height {
		return types.InvalidArgument(info.File, info.Size().String(), fmt.Sprintf("image too small (minimum: %s)", lo))
	}
	return nil
}

// InspectDir reads every supported image directly inside dir. Unreadable
// files are reported, not returned as errors.
func (a *Analyzer) InspectDir(ctx context.Context, dir string) (Report, error) {
	files, err := utils.ListImageFiles(dir, a.config.SupportedFormats)
	if err != nil {
		return Report{}, types.IOError("list input directory", dir, err)
	}

	report := Report{
		Images:   []ImageInfo{},
		Failed:   []types.FailedFile{},
		Total:    len(files),
		Formats:  map[string]int{},
		TooSmall: []string{},
	}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, types.FailedFile{File: name, Error: err.Error()})
			continue
		}

		info, err := a.GetImageInfo(filepath.Join(dir, name))
		if err != nil {
			report.Failed = append(report.Failed, types.FailedFile{File: name, Error: err.Error()})
			continue
		}
		report.add(info)
		if a.ValidateImage(info) != nil {
			report.TooSmall = append(report.TooSmall, name)
		}
	}
	return report, nil
}

func (r *Report) add(info ImageInfo) {
	if len(r.Images) == 0 {
		r.Smallest, r.Largest = info.Size(), info.Size()
	} else {
		if info.Area < r.Smallest.Width*r.Smallest.Height {
			r.Smallest = info.Size()
		}
		if info.Area > r.Largest.Width*r.Largest.Height {
			r.Largest = info.Size()
		}
	}
	r.Images = append(r.Images, info)
	r.Formats[strings.ToLower(info.Format)]++
}
