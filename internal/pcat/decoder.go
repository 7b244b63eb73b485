package pcat

import "image"

// ImageDecoder turns stored thumbnail bytes into a displayable image no
// larger than maxWidth x maxHeight. Non-positive bounds mean no limit.
type ImageDecoder interface {
	Decode(data []byte, maxWidth, maxHeight int) (image.Image, error)
}

// ImageDecoderFunc adapts a function to ImageDecoder.
type ImageDecoderFunc func(data []byte, maxWidth, maxHeight int) (image.Image, error)

func (f ImageDecoderFunc) Decode(data []byte, maxWidth, maxHeight int) (image.Image, error) {
	return f(data, maxWidth, maxHeight)
}
