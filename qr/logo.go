package qr

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
)

var (
	// ErrNoLogo means no logo is available; the code is rendered without one.
	ErrNoLogo = errors.New("no logo available")
	// ErrLogoRead means a logo exists but could not be read or decoded.
	ErrLogoRead = errors.New("read logo")
)

// LogoProvider supplies the image drawn over the center of a QR code.
type LogoProvider interface {
	Logo() (image.Image, error)
}

// FileLogo loads the logo from an image file (PNG, JPEG or GIF) on every
// call. An empty Path or a missing file yields ErrNoLogo.
type FileLogo struct {
	Path string
}

func (f FileLogo) Logo() (image.Image, error) {
	if f.Path == "" {
		return nil, ErrNoLogo
	}
	file, err := os.Open(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoLogo
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLogoRead, f.Path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLogoRead, f.Path, err)
	}
	return img, nil
}

// StaticLogo serves an image held in memory. A nil Image yields ErrNoLogo.
type StaticLogo struct {
	Image image.Image
}

func (s StaticLogo) Logo() (image.Image, error) {
	if s.Image == nil {
		return nil, ErrNoLogo
	}
	return s.Image, nil
}
