package testutil

import (
	"errors"
	"image"
	"strings"
	"sync/atomic"
)

// StubDecoder decodes any payload into a 1 x len(data) gray image. Payloads
// starting with "corrupt" fail and payloads starting with "panic" panic.
type StubDecoder struct {
	calls atomic.Int64
}

func (d *StubDecoder) Decode(data []byte, maxWidth, maxHeight int) (image.Image, error) {
	d.calls.Add(1)
	switch {
	case strings.HasPrefix(string(data), "corrupt"):
		return nil, errors.New("stub: corrupt image")
	case strings.HasPrefix(string(data), "panic"):
		panic("stub: decoder panic")
	}
	return image.NewGray(image.Rect(0, 0, 1, len(data))), nil
}

// Calls returns how many times Decode was called.
func (d *StubDecoder) Calls() int {
	return int(d.calls.Load())
}
