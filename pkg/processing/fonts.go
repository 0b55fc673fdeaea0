package processing

import (
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// fontLoader parses the configured font file once and hands out faces.
// Faces are not safe for concurrent use, so each call gets its own.
type fontLoader struct {
	path string
	size float64

	once sync.Once
	font *opentype.Font
}

func newFontLoader(path string, size float64) *fontLoader {
	if size <= 0 {
		size = 16
	}
	return &fontLoader{path: path, size: size}
}

// Face returns a face for the configured font, or the built-in bitmap face
// when the font file is missing or unusable.
func (l *fontLoader) Face() font.Face {
	l.once.Do(func() {
		if l.path == "" {
			return
		}
		data, err := os.ReadFile(l.path)
		if err != nil {
			return
		}
		f, err := opentype.Parse(data)
		if err != nil {
			return
		}
		l.font = f
	})

	if l.font != nil {
		face, err := opentype.NewFace(l.font, &opentype.FaceOptions{
			Size:    l.size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err == nil {
			return face
		}
	}
	return basicfont.Face7x13
}
