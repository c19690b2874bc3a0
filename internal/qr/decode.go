package qr

import (
	"errors"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/rotisserie/eris"
)

// ErrNoCode means the image holds no decodable QR code.
var ErrNoCode = errors.New("qr: no code found")

// Decoder reads a QR payload from an image, optionally inverting its
// luminance first.
type Decoder interface {
	Decode(img image.Image, invert bool) (string, error)
}

// ZXingDecoder decodes with gozxing.
type ZXingDecoder struct{}

func (ZXingDecoder) Decode(img image.Image, invert bool) (string, error) {
	src := gozxing.NewLuminanceSourceFromImage(img)
	if invert {
		src = src.Invert()
	}
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(src))
	if err != nil {
		return "", eris.Wrap(err, "qr: binarize")
	}
	hints := map[gozxing.DecodeHintType]any{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", ErrNoCode
	}
	return res.GetText(), nil
}
