// Package render turns composed tile images into wire bytes.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"
)

// PNGEncoder encodes tile images with pooled scratch buffers. Safe for
// concurrent use.
type PNGEncoder struct {
	bufs sync.Pool
}

// NewPNGEncoder creates a new encoder.
func NewPNGEncoder() *PNGEncoder {
	return &PNGEncoder{
		bufs: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
}

// Encode serializes the image as PNG. Tiles are transient, so encode
// speed wins over compression ratio.
func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	buf := e.bufs.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		e.bufs.Put(buf)
	}()

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}
