package datatype

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	// Page image formats.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var matrixMagic = [4]byte{'B', 'M', 'A', 'T'}

const matrixVersion uint16 = 1

// ErrCorrupt is returned when persisted payload bytes cannot be decoded.
var ErrCorrupt = errors.New("datatype: corrupt payload")

// EncodeMatrix writes m in the little-endian binary matrix format:
// magic, version, width, height, then width*height float64 samples.
func EncodeMatrix(w io.Writer, m *FloatMatrix) error {
	if m == nil {
		return fmt.Errorf("datatype: nil matrix")
	}
	bw := bufio.NewWriter(w)
	header := struct {
		Magic   [4]byte
		Version uint16
		Width   uint32
		Height  uint32
	}{matrixMagic, matrixVersion, uint32(m.Width), uint32(m.Height)}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, m.Data); err != nil {
		return err
	}
	return bw.Flush()
}

// DecodeMatrix reads a matrix written by EncodeMatrix.
func DecodeMatrix(r io.Reader) (*FloatMatrix, error) {
	var header struct {
		Magic   [4]byte
		Version uint16
		Width   uint32
		Height  uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if header.Magic != matrixMagic || header.Version != matrixVersion {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	if uint64(header.Width)*uint64(header.Height) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: matrix too large", ErrCorrupt)
	}
	m := NewMatrix(int(header.Width), int(header.Height))
	if err := binary.Read(r, binary.LittleEndian, m.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return m, nil
}

// MarshalMatrix is EncodeMatrix into a byte slice.
func MarshalMatrix(m *FloatMatrix) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeMatrix(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalMatrix is DecodeMatrix from a byte slice.
func UnmarshalMatrix(data []byte) (*FloatMatrix, error) {
	return DecodeMatrix(bytes.NewReader(data))
}

// EncodeImage persists img as PNG.
func EncodeImage(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

// DecodeImage reads any registered format: PNG, JPEG, GIF, TIFF or BMP.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("datatype: decode image: %w", err)
	}
	return img, format, nil
}

// MarshalImage is EncodeImage into a byte slice.
func MarshalImage(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeImage(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalImage is DecodeImage from a byte slice.
func UnmarshalImage(data []byte) (image.Image, error) {
	img, _, err := DecodeImage(bytes.NewReader(data))
	return img, err
}

// Scale fits img inside a maxSize square, preserving aspect ratio. Images that
// already fit are returned unchanged.
func Scale(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return img
	}
	ratio := math.Min(float64(maxSize)/float64(w), float64(maxSize)/float64(h))
	dw := max(1, int(math.Round(float64(w)*ratio)))
	dh := max(1, int(math.Round(float64(h)*ratio)))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// Render converts a port payload into an image for previews.
func Render(payload any) (image.Image, error) {
	switch v := payload.(type) {
	case image.Image:
		return v, nil
	case *FloatMatrix:
		return v.ToImage(), nil
	default:
		return nil, fmt.Errorf("datatype: cannot render %T", payload)
	}
}

// Marshal encodes a payload of type t.
func Marshal(t Type, payload any) ([]byte, error) {
	switch t {
	case Image:
		img, ok := payload.(image.Image)
		if !ok {
			return nil, fmt.Errorf("datatype: %s payload is %T", t, payload)
		}
		return MarshalImage(img)
	case Matrix:
		m, ok := payload.(*FloatMatrix)
		if !ok {
			return nil, fmt.Errorf("datatype: %s payload is %T", t, payload)
		}
		return MarshalMatrix(m)
	default:
		return nil, fmt.Errorf("datatype: unknown type %q", t)
	}
}

// Unmarshal decodes a payload of type t.
func Unmarshal(t Type, data []byte) (any, error) {
	switch t {
	case Image:
		return UnmarshalImage(data)
	case Matrix:
		return UnmarshalMatrix(data)
	default:
		return nil, fmt.Errorf("datatype: unknown type %q", t)
	}
}
