// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package graphics

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

var ErrNotCapturable = errors.New("buffer has no readable pixels")

// Capture copies the pixels of a buffer into a new image.
// If the buffer is larger than maxSize in either direction the copy is scaled down,
// keeping the aspect ratio. An empty maxSize disables scaling
func Capture(buf Buffer, maxSize Size) (image.Image, error) {
	sb, ok := buf.(*SoftwareBuffer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCapturable, buf.ID())
	}
	src := sb.Image()
	target := fitInto(sb.Size(), maxSize)
	dst := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	if target == sb.Size() {
		draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}
	return dst, nil
}

// WritePNG encodes a captured image
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding capture: %w", err)
	}
	return nil
}

func fitInto(size, bound Size) Size {
	if bound.Empty() || (size.Width <= bound.Width && size.Height <= bound.Height) {
		return size
	}
	// Scale by whichever side overflows more
	if size.Width*bound.Height > size.Height*bound.Width {
		h := size.Height * bound.Width / size.Width
		return Size{Width: bound.Width, Height: max(h, 1)}
	}
	w := size.Width * bound.Height / size.Height
	return Size{Width: max(w, 1), Height: bound.Height}
}
