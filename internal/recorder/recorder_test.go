package recorder

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/scene"
)

type stubScene struct {
	seed      int64
	frames    int
	failAt    int
	malformed bool
	connected bool
	released  *bool
}

func (s *stubScene) Connect(_ context.Context, _ bool) error {
	s.connected = true
	return nil
}

func (s *stubScene) MakeNewScene(_ context.Context) (*frame.Record, error) {
	if s.frames == s.failAt {
		return nil, errors.New("scene exploded")
	}
	rgb := image.NewRGBA(image.Rect(0, 0, 4, 2))
	mask := image.NewGray16(image.Rect(0, 0, 4, 2))
	if s.malformed {
		mask = image.NewGray16(image.Rect(0, 0, 3, 2))
	}
	rec := &frame.Record{
		Camera: frame.Camera{RGB: rgb, Mask: mask},
		Annotations: map[string]any{
			"seed":  s.seed,
			"frame": s.frames,
		},
	}
	s.frames++
	return rec, nil
}

func (s *stubScene) Disconnect() error {
	s.connected = false
	*s.released = true
	return nil
}

func newRecorder(t *testing.T, failAt int, malformed bool) (*Recorder, *bool) {
	t.Helper()
	released := new(bool)
	reg := scene.NewRegistry()
	reg.Register("stub", func(_ scene.Config, seed int64, _ *slog.Logger) (scene.Generator, error) {
		return &stubScene{seed: seed, failAt: failAt, malformed: malformed, released: released}, nil
	})
	ser, err := frame.NewSerializer(frame.Options{RGBCodec: frame.CodecPNG})
	if err != nil {
		t.Fatal(err)
	}
	return New(reg, ser, nil), released
}

var stub = scene.Config{Type: "stub"}

func TestRecordChunkWritesKeysInOrder(t *testing.T) {
	g := NewWithT(t)
	r, released := newRecorder(t, -1, false)
	dir := filepath.Join(t.TempDir(), "ds")

	res, err := r.RecordChunk(context.Background(), dir, stub, 10, 3)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Seed).To(Equal(int64(10)))
	g.Expect(res.Keys).To(Equal([]string{"10-0", "10-1", "10-2"}))
	g.Expect(*released).To(BeTrue())

	for i, key := range res.Keys {
		data, err := os.ReadFile(filepath.Join(dir, "dumps", key+".msgpack"))
		g.Expect(err).NotTo(HaveOccurred())
		dec, err := frame.Decode(data)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(dec.Annotations["frame"]).To(BeNumerically("==", i))
		g.Expect(dec.Annotations["seed"]).To(BeNumerically("==", 10))
	}
}

func TestRecordChunkZeroFrames(t *testing.T) {
	g := NewWithT(t)
	r, _ := newRecorder(t, -1, false)
	dir := t.TempDir()

	res, err := r.RecordChunk(context.Background(), dir, stub, 4, 0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Keys).To(BeEmpty())
	g.Expect(filepath.Join(dir, "dumps")).To(BeADirectory())
}

func TestRecordChunkRejectsNegativeCount(t *testing.T) {
	g := NewWithT(t)
	r, _ := newRecorder(t, -1, false)
	_, err := r.RecordChunk(context.Background(), t.TempDir(), stub, 1, -1)
	g.Expect(err).To(MatchError(ErrInvalidFrameCount))
}

func TestRecordChunkReleasesSceneOnFailure(t *testing.T) {
	g := NewWithT(t)
	r, released := newRecorder(t, 1, false)
	dir := t.TempDir()

	_, err := r.RecordChunk(context.Background(), dir, stub, 7, 3)
	g.Expect(err).To(MatchError(ContainSubstring("seed 7 frame 1")))
	g.Expect(*released).To(BeTrue())

	entries, err := os.ReadDir(filepath.Join(dir, "dumps"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(entries).To(BeEmpty())
}

func TestRecordChunkMalformedFrame(t *testing.T) {
	g := NewWithT(t)
	r, _ := newRecorder(t, -1, true)
	_, err := r.RecordChunk(context.Background(), t.TempDir(), stub, 2, 2)
	g.Expect(err).To(MatchError(frame.ErrMalformedFrame))
}

func TestRecordChunkUnknownScene(t *testing.T) {
	g := NewWithT(t)
	r, _ := newRecorder(t, -1, false)
	_, err := r.RecordChunk(context.Background(), t.TempDir(), scene.Config{Type: "missing"}, 2, 2)
	g.Expect(err).To(MatchError(ContainSubstring("unknown scene type")))
}

func TestRecordChunkWithDropScene(t *testing.T) {
	g := NewWithT(t)
	ser, err := frame.NewSerializer(frame.Options{RGBCodec: frame.CodecJPEG, JPEGQuality: 90, Compression: frame.CompressionZstd})
	g.Expect(err).NotTo(HaveOccurred())
	r := New(scene.NewRegistry(), ser, nil)
	dir := t.TempDir()

	cfg := scene.Config{Type: scene.DropType, Params: map[string]any{
		"width": 32, "height": 24, "max_objects": 3, "settle_time": 0.1,
	}}
	res, err := r.RecordChunk(context.Background(), dir, cfg, 1, 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Keys).To(HaveLen(2))
	g.Expect(filepath.Join(dir, "dumps", "1-1.msgpack.zst")).To(BeARegularFile())
}
