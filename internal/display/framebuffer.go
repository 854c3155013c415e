package display

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	lineHeight = 15
	marginX    = 4
)

// Framebuffer renders a Screen as a plain text listing, one widget per line.
// It backs the /screen.png debugging snapshot.
type Framebuffer struct {
	screen        *Screen
	width, height int
}

// NewFramebuffer creates a framebuffer of the given size over screen.
func NewFramebuffer(screen *Screen, width, height int) *Framebuffer {
	if width <= 0 {
		width = 480
	}
	if height <= 0 {
		height = 320
	}
	return &Framebuffer{screen: screen, width: width, height: height}
}

// Render draws the current widget values.
func (f *Framebuffer) Render() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.width, f.height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}

	y := lineHeight
	for _, e := range f.screen.Snapshot() {
		if y > f.height {
			break
		}
		prefix := ""
		if e.Image {
			prefix = "[img] "
		}
		text(img, marginX, y, string(e.Widget)+": "+prefix+e.Value, 0x00)
		y += lineHeight
	}
	return img
}

// WritePNG encodes the current render to w.
func (f *Framebuffer) WritePNG(w io.Writer) error {
	return png.Encode(w, f.Render())
}

func text(img *image.Gray, x, y int, s string, fg uint8) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: fg}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
