package dataset_test

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"os"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/posegen/internal/dataset"
	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/recorder"
	"github.com/san-kum/posegen/internal/scene"
	"github.com/san-kum/posegen/internal/session"
)

func TestDataset(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dataset Suite")
}

const stubType = "stub"

// stubScene emits tiny frames annotated with their seed, index and the
// device the process was given.
type stubScene struct {
	seed  int64
	frame int
}

func (s *stubScene) Connect(context.Context, bool) error { return nil }
func (s *stubScene) Disconnect() error                   { return nil }

func (s *stubScene) MakeNewScene(context.Context) (*frame.Record, error) {
	rgb := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgb.Pix[0] = uint8(s.seed)
	rec := &frame.Record{
		Camera: frame.Camera{RGB: rgb, Mask: image.NewGray16(image.Rect(0, 0, 2, 2))},
		Annotations: map[string]any{
			"seed":   s.seed,
			"frame":  s.frame,
			"device": os.Getenv(session.VisibleDevicesVar),
		},
	}
	s.frame++
	return rec, nil
}

func stubRegistry() *scene.Registry {
	reg := scene.NewRegistry()
	reg.Register(stubType, func(_ scene.Config, seed int64, _ *slog.Logger) (scene.Generator, error) {
		return &stubScene{seed: seed}, nil
	})
	return reg
}

// spyDispatcher wraps another dispatcher, records which seeds it was asked
// for and can fail or run a hook per seed.
type spyDispatcher struct {
	inner   dataset.Dispatcher
	workers int
	failOn  map[int64]bool
	hook    func(seed int64)

	mu   sync.Mutex
	seen []int64
}

func (s *spyDispatcher) Workers() int { return s.workers }

func (s *spyDispatcher) Dispatch(ctx context.Context, job dataset.Job) (recorder.Result, error) {
	s.mu.Lock()
	s.seen = append(s.seen, job.Seed)
	s.mu.Unlock()
	if s.hook != nil {
		s.hook(job.Seed)
	}
	if s.failOn[job.Seed] {
		return recorder.Result{}, errors.New("simulated worker crash")
	}
	return s.inner.Dispatch(ctx, job)
}

func (s *spyDispatcher) dispatched() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seen...)
}
