// Package images - Decoding and encoding frames.
package images

import (
	"bytes"
	"os"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// webpQuality is the lossy WebP quality used for snapshots.
const webpQuality = 90

// DecodeFrame decodes an encoded image into a BGR Mat.
//
// WebP goes through the pure WebP decoder so frames decode the same whether or not
// the OpenCV build carries a WebP codec; every other format is decoded by OpenCV.
//
// Arguments:
//   - data: The encoded image.
//   - format: The encoding of data.
//
// Returns:
//   - gocv.Mat: The CV_8UC3 frame. Owned by the caller.
//   - error: An error if decoding fails.
func DecodeFrame(data []byte, format ImageFormat) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), errors.New("images: empty image data")
	}

	if format == FormatWebP {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return gocv.NewMat(), errors.Wrap(err, "images: decoding webp")
		}
		mat, err := gocv.ImageToMatRGB(img)
		if err != nil {
			return gocv.NewMat(), errors.Wrap(err, "images: converting webp")
		}
		return mat, nil
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), errors.Wrapf(err, "images: decoding %s", format)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), errors.Errorf("images: %s data did not decode", format)
	}
	return mat, nil
}

// EncodeFrame encodes img in format.
//
// Arguments:
//   - img: The frame to encode, BGR or single channel.
//   - format: The target encoding.
//
// Returns:
//   - []byte: The encoded image.
//   - error: An error if encoding fails.
func EncodeFrame(img gocv.Mat, format ImageFormat) ([]byte, error) {
	if img.Empty() {
		return nil, errors.New("images: empty frame")
	}

	if format == FormatWebP {
		src, err := img.ToImage()
		if err != nil {
			return nil, errors.Wrap(err, "images: converting frame")
		}
		var buf bytes.Buffer
		if err := webp.Encode(&buf, src, &webp.Options{Quality: webpQuality}); err != nil {
			return nil, errors.Wrap(err, "images: encoding webp")
		}
		return buf.Bytes(), nil
	}

	native, err := gocv.IMEncode(gocv.FileExt(format.Extension()), img)
	if err != nil {
		return nil, errors.Wrapf(err, "images: encoding %s", format)
	}
	defer native.Close()
	return append([]byte(nil), native.GetBytes()...), nil
}

// WriteFrame writes img to path in the format given by its extension.
//
// Arguments:
//   - path: The destination file.
//   - img: The frame to write, BGR or single channel.
//
// Returns:
//   - error: An error if the format is unknown or writing fails.
func WriteFrame(path string, img gocv.Mat) error {
	format, ok := FormatFromPath(path)
	if !ok {
		return errors.Errorf("images: unsupported output format %s", path)
	}

	if format == FormatWebP {
		data, err := EncodeFrame(img, format)
		if err != nil {
			return err
		}
		return errors.Wrapf(os.WriteFile(path, data, 0o644), "images: writing %s", path)
	}

	if !gocv.IMWrite(path, img) {
		return errors.Errorf("images: writing %s", path)
	}
	return nil
}
