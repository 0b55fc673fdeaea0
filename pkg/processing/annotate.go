package processing

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

// labelOffset is how far above the box top the label is placed
const labelOffset = 20

// namedColors holds every color a box may be drawn in
var namedColors = map[string]color.NRGBA{
	"red":     {255, 0, 0, 255},
	"blue":    {0, 0, 255, 255},
	"green":   {0, 128, 0, 255},
	"yellow":  {255, 255, 0, 255},
	"purple":  {128, 0, 128, 255},
	"orange":  {255, 165, 0, 255},
	"cyan":    {0, 255, 255, 255},
	"magenta": {255, 0, 255, 255},
	"white":   {255, 255, 255, 255},
	"black":   {0, 0, 0, 255},
}

// ColorByName returns the RGBA value of a named color
func ColorByName(name string) (color.NRGBA, bool) {
	c, ok := namedColors[strings.ToLower(name)]
	return c, ok
}

// Annotate draws boxes on source in order and writes the result to dest.
func (p *Processor) Annotate(source string, boxes []types.BoundingBox, dest string) types.Result[types.AnnotateResult] {
	colors, err := p.resolveColors(boxes)
	if err != nil {
		return types.Failure[types.AnnotateResult](err)
	}

	img, err := p.LoadImageSmart(source)
	if err != nil {
		return types.Failure[types.AnnotateResult](err)
	}

	canvas := imaging.Clone(img)
	face := p.fonts.Face()
	defer face.Close()

	for i, box := range boxes {
		drawRect(canvas, box.X, box.Y, box.X+box.Width, box.Y+box.Height, colors[i], p.opts.BoxWidth)
		if box.Label != "" {
			drawLabel(canvas, face, box.X, box.Y-labelOffset, box.Label, colors[i])
		}
	}

	if err := p.SaveImage(canvas, dest); err != nil {
		return types.Failure[types.AnnotateResult](err)
	}

	return types.Success(types.AnnotateResult{
		BoxesAdded: len(boxes),
		OutputPath: dest,
	})
}

// resolveColors validates every box and returns its draw color
func (p *Processor) resolveColors(boxes []types.BoundingBox) ([]color.NRGBA, error) {
	colors := make([]color.NRGBA, len(boxes))
	for i, box := range boxes {
		field := fmt.Sprintf("boxes[%d]", i)
		switch {
		case box.X < 0:
			return nil, types.InvalidArgument(field+".x", strconv.Itoa(box.X), "must not be negative")
		case box.Y < 0:
			return nil, types.InvalidArgument(field+".y", strconv.Itoa(box.Y), "must not be negative")
		case box.Width < 0:
			return nil, types.InvalidArgument(field+".width", strconv.Itoa(box.Width), "must not be negative")
		case box.Height < 0:
			return nil, types.InvalidArgument(field+".height", strconv.Itoa(box.Height), "must not be negative")
		}

		name := box.Color
		if name == "" {
			name = p.opts.DefaultColor
		}
		if !p.inPalette(name) {
			return nil, types.InvalidArgument(field+".color", name, "not in palette")
		}
		c, ok := ColorByName(name)
		if !ok {
			return nil, types.InvalidArgument(field+".color", name, "unknown color")
		}
		colors[i] = c
	}
	return colors, nil
}

func (p *Processor) inPalette(name string) bool {
	if len(p.opts.Palette) == 0 {
		return true
	}
	for _, c := range p.opts.Palette {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// drawRect draws an unfilled rectangle with corners (x0,y0) and (x1,y1) inclusive,
// the stroke growing inward.
func drawRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, stroke int) {
	if stroke < 1 {
		stroke = 1
	}
	x1++
	y1++
	for s := 0; s < stroke; s++ {
		if y0+s >= y1-s || x0+s >= x1-s {
			break
		}
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

// drawLabel fills the text extent with bg and writes text in white, its top-left at (x, top)
func drawLabel(img *image.NRGBA, face font.Face, x, top int, text string, bg color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(x, top+face.Metrics().Ascent.Ceil()),
	}
	bounds, _ := d.BoundString(text)
	rect := image.Rect(bounds.Min.X.Floor(), bounds.Min.Y.Floor(), bounds.Max.X.Ceil(), bounds.Max.Y.Ceil())
	draw.Draw(img, rect, &image.Uniform{C: bg}, image.Point{}, draw.Src)
	d.DrawString(text)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= b.Min.X || x0 >= b.Max.X {
		return
	}
	if x0 < b.Min.X {
		x0 = b.Min.X
	}
	if x1 > b.Max.X {
		x1 = b.Max.X
	}
	i := img.PixOffset(x0, y)
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= b.Min.Y || y0 >= b.Max.Y {
		return
	}
	if y0 < b.Min.Y {
		y0 = b.Min.Y
	}
	if y1 > b.Max.Y {
		y1 = b.Max.Y
	}
	i := img.PixOffset(x, y0)
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
