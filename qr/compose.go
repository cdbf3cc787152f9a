// Package qr renders QR codes with an optional logo centered on top.
package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

const (
	// DefaultModuleSize is the rendered width of one QR module in pixels.
	DefaultModuleSize = 10
	// DefaultLogoRatio makes the logo side 1/5 of the code width.
	DefaultLogoRatio = 5

	// preferredVersion is tried first; longer content grows the symbol.
	preferredVersion = 1
)

// Code is a rendered QR image.
type Code struct {
	Image *image.RGBA
	// Logo reports whether a logo was drawn over the code.
	Logo bool
}

// PNG serializes the code as a PNG. The image is fully opaque so the result
// carries no alpha channel.
func (c *Code) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, c.Image); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG writes img to w as a PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Composer encodes text at the highest error correction level and overlays
// the logo from Logo, if one is configured and available.
type Composer struct {
	Logo       LogoProvider
	ModuleSize int
	LogoRatio  int
}

// NewComposer returns a Composer with the default geometry. logo may be nil.
func NewComposer(logo LogoProvider) *Composer {
	return &Composer{
		Logo:       logo,
		ModuleSize: DefaultModuleSize,
		LogoRatio:  DefaultLogoRatio,
	}
}

// Compose renders data as a QR code with the logo centered on it. A missing
// logo yields the plain code; an unreadable one fails with an error wrapping
// ErrLogoRead.
func (c *Composer) Compose(data string) (*Code, error) {
	img, err := c.encode(data)
	if err != nil {
		return nil, err
	}

	if c.Logo == nil {
		return &Code{Image: img}, nil
	}
	logo, err := c.Logo.Logo()
	if errors.Is(err, ErrNoLogo) {
		return &Code{Image: img}, nil
	}
	if err != nil {
		return nil, err
	}

	c.overlay(img, logo)
	return &Code{Image: img, Logo: true}, nil
}

// ComposePlain renders data without a logo.
func (c *Composer) ComposePlain(data string) (*Code, error) {
	img, err := c.encode(data)
	if err != nil {
		return nil, err
	}
	return &Code{Image: img}, nil
}

func (c *Composer) encode(data string) (*image.RGBA, error) {
	q, err := qrcode.NewWithForcedVersion(data, preferredVersion, qrcode.Highest)
	if err != nil {
		// Too long for the preferred version: let the encoder pick the
		// smallest version that fits.
		q, err = qrcode.New(data, qrcode.Highest)
		if err != nil {
			return nil, fmt.Errorf("encode qr: %w", err)
		}
	}
	q.ForegroundColor = color.Black
	q.BackgroundColor = color.White

	moduleSize := c.ModuleSize
	if moduleSize <= 0 {
		moduleSize = DefaultModuleSize
	}
	// A negative size asks go-qrcode for a fixed pixel count per module;
	// the 4-module quiet zone is included.
	src := q.Image(-moduleSize)

	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, nil
}

// overlay resizes logo to a square of width/LogoRatio and draws it over the
// center of dst. Transparent logo pixels leave the code visible.
func (c *Composer) overlay(dst *image.RGBA, logo image.Image) {
	ratio := c.LogoRatio
	if ratio <= 0 {
		ratio = DefaultLogoRatio
	}
	b := dst.Bounds()
	side := b.Dx() / ratio
	if side <= 0 {
		return
	}

	resized := image.NewNRGBA(image.Rect(0, 0, side, side))
	draw.CatmullRom.Scale(resized, resized.Bounds(), logo, logo.Bounds(), draw.Src, nil)

	at := image.Pt(b.Min.X+(b.Dx()-side)/2, b.Min.Y+(b.Dy()-side)/2)
	target := image.Rectangle{Min: at, Max: at.Add(image.Pt(side, side))}

	op := draw.Src
	if hasAlpha(logo) {
		op = draw.Over
	}
	draw.Draw(dst, target, resized, image.Point{}, op)
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}
