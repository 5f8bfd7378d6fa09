package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"reflect"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"
)

const (
	CodecJPEG = "jpeg"
	CodecPNG  = "png"

	CompressionNone = "none"
	CompressionZstd = "zstd"

	// FormatVersion is written into every envelope.
	FormatVersion = 1

	DefaultJPEGQuality = 100
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Options select how the RGB image and the envelope are encoded. The mask is
// always PNG so labels round-trip exactly.
type Options struct {
	RGBCodec    string `yaml:"rgb_codec"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	Compression string `yaml:"compression"`
}

func DefaultOptions() Options {
	return Options{RGBCodec: CodecJPEG, JPEGQuality: DefaultJPEGQuality, Compression: CompressionNone}
}

func (o Options) Validate() error {
	switch o.RGBCodec {
	case CodecJPEG, CodecPNG:
	default:
		return fmt.Errorf("unknown rgb codec: %q", o.RGBCodec)
	}
	if o.RGBCodec == CodecJPEG && (o.JPEGQuality < 1 || o.JPEGQuality > 100) {
		return fmt.Errorf("jpeg quality must be in [1, 100], got %d", o.JPEGQuality)
	}
	switch o.Compression {
	case "", CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("unknown compression: %q", o.Compression)
	}
	return nil
}

// Ext is the file suffix for artifacts written with these options.
func (o Options) Ext() string {
	if o.Compression == CompressionZstd {
		return ".msgpack.zst"
	}
	return ".msgpack"
}

// Serializer turns records into self-describing msgpack blobs. It holds no
// per-call state and may be shared.
type Serializer struct {
	opts Options
	enc  *zstd.Encoder
}

func NewSerializer(opts Options) (*Serializer, error) {
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &Serializer{opts: opts}
	if opts.Compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		s.enc = enc
	}
	return s, nil
}

func (s *Serializer) Options() Options { return s.opts }
func (s *Serializer) Ext() string      { return s.opts.Ext() }

// Encode drops the depth buffer, compresses the images and packs them with
// the annotations. Identical inputs give identical bytes.
func (s *Serializer) Encode(rec *Record) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rgb, err := encodeRGB(rec.Camera.RGB, s.opts)
	if err != nil {
		return nil, err
	}
	var mask bytes.Buffer
	if err := png.Encode(&mask, rec.Camera.Mask); err != nil {
		return nil, fmt.Errorf("encode mask: %w", err)
	}
	w, h := rec.Size()

	b := msgp.AppendMapHeader(nil, 7)
	b = msgp.AppendString(b, "version")
	b = msgp.AppendInt(b, FormatVersion)
	b = msgp.AppendString(b, "width")
	b = msgp.AppendInt(b, w)
	b = msgp.AppendString(b, "height")
	b = msgp.AppendInt(b, h)
	b = msgp.AppendString(b, "rgb_format")
	b = msgp.AppendString(b, s.opts.RGBCodec)
	b = msgp.AppendString(b, "rgb")
	b = msgp.AppendBytes(b, rgb)
	b = msgp.AppendString(b, "mask")
	b = msgp.AppendBytes(b, mask.Bytes())
	b = msgp.AppendString(b, "annotations")
	b, err = appendValue(b, rec.Annotations)
	if err != nil {
		return nil, fmt.Errorf("%w: annotations: %v", ErrMalformedFrame, err)
	}

	if s.enc != nil {
		return s.enc.EncodeAll(b, nil), nil
	}
	return b, nil
}

func encodeRGB(img *image.RGBA, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	switch opts.RGBCodec {
	case CodecPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode rgb png: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
			return nil, fmt.Errorf("encode rgb jpeg: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// appendValue writes v with map keys in sorted order so the output does not
// depend on map iteration. Containers of any element type are walked so
// nested maps are sorted too.
func appendValue(b []byte, v any) ([]byte, error) {
	if m, ok := v.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b = msgp.AppendMapHeader(b, uint32(len(keys)))
		for _, k := range keys {
			var err error
			b = msgp.AppendString(b, k)
			if b, err = appendValue(b, m[k]); err != nil {
				return b, fmt.Errorf("%s: %w", k, err)
			}
		}
		return b, nil
	}
	if v == nil {
		return msgp.AppendNil(b), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return b, fmt.Errorf("unsupported map type %T", v)
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		b = msgp.AppendMapHeader(b, uint32(len(keys)))
		for _, k := range keys {
			var err error
			b = msgp.AppendString(b, k.String())
			if b, err = appendValue(b, rv.MapIndex(k).Interface()); err != nil {
				return b, fmt.Errorf("%s: %w", k.String(), err)
			}
		}
		return b, nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return msgp.AppendBytes(b, rv.Bytes()), nil
		}
		fallthrough
	case reflect.Array:
		b = msgp.AppendArrayHeader(b, uint32(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			var err error
			if b, err = appendValue(b, rv.Index(i).Interface()); err != nil {
				return b, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return b, nil
	}
	return msgp.AppendIntf(b, v)
}

// Decoded is a deserialized artifact.
type Decoded struct {
	Version     int
	Width       int
	Height      int
	RGBFormat   string
	RGB         image.Image
	Mask        *image.Gray16
	Annotations map[string]any
}

// Decode reverses Encode, transparently handling zstd envelopes.
func Decode(data []byte) (*Decoded, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
	}

	n, b, err := msgp.ReadMapHeaderBytes(data)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	out := &Decoded{}
	var rgb, mask []byte
	for i := uint32(0); i < n; i++ {
		var key string
		if key, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		switch key {
		case "version":
			out.Version, b, err = msgp.ReadIntBytes(b)
		case "width":
			out.Width, b, err = msgp.ReadIntBytes(b)
		case "height":
			out.Height, b, err = msgp.ReadIntBytes(b)
		case "rgb_format":
			out.RGBFormat, b, err = msgp.ReadStringBytes(b)
		case "rgb":
			rgb, b, err = msgp.ReadBytesBytes(b, nil)
		case "mask":
			mask, b, err = msgp.ReadBytesBytes(b, nil)
		case "annotations":
			var v any
			if v, b, err = msgp.ReadIntfBytes(b); err == nil {
				ann, ok := v.(map[string]any)
				if !ok && v != nil {
					err = fmt.Errorf("annotations are %T, not a map", v)
				}
				out.Annotations = ann
			}
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
	}

	if out.RGB, err = decodeRGB(rgb, out.RGBFormat); err != nil {
		return nil, err
	}
	m, err := png.Decode(bytes.NewReader(mask))
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}
	gray, ok := m.(*image.Gray16)
	if !ok {
		return nil, errors.New("decode mask: not a 16-bit label image")
	}
	out.Mask = gray
	return out, nil
}

func decodeRGB(data []byte, format string) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch format {
	case CodecPNG:
		img, err = png.Decode(bytes.NewReader(data))
	case CodecJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unknown rgb format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode rgb: %w", err)
	}
	return img, nil
}
