package downloader

import (
	"bufio"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageInfo is what sniffing a file reveals.
type ImageInfo struct {
	Format string
	Width  int
	Height int
	Bytes  int64
}

// Ext returns the file extension for the sniffed format.
func (i ImageInfo) Ext() string {
	return "." + i.Format
}

// Sniff reads the image header at path. Unrecognized content is reported
// as jpeg with unknown dimensions.
func Sniff(path string) (ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return ImageInfo{}, err
	}
	info := ImageInfo{Format: "jpeg", Bytes: st.Size()}

	cfg, format, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return info, nil
	}
	info.Format = format
	info.Width = cfg.Width
	info.Height = cfg.Height
	return info, nil
}
