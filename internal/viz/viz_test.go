package viz

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/gomega"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/dataset"
)

func step(t *testing.T, m ProgressModel, msg tea.Msg) (ProgressModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(ProgressModel)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return pm, cmd
}

func TestProgressModelTracksChunks(t *testing.T) {
	g := NewWithT(t)
	clock := time.Unix(0, 0)
	m := NewProgressModel("/data/ds", ThemeMinimal, nil)
	m.now = func() time.Time { return clock }

	m, _ = step(t, m, RunStartedMsg{Total: 4, Pending: 3})
	g.Expect(m.done).To(Equal(1))

	clock = clock.Add(2 * time.Second)
	m, _ = step(t, m, ChunkDoneMsg{Seed: 11, Frames: 3, Done: 2, Total: 4})
	clock = clock.Add(4 * time.Second)
	m, _ = step(t, m, ChunkDoneMsg{Seed: 12, Frames: 3, Done: 3, Total: 4})

	g.Expect(m.frames).To(Equal(6))
	g.Expect(m.recent).To(Equal([]int64{11, 12}))
	g.Expect(m.eta()).To(Equal("3s"))

	view := m.View()
	g.Expect(view).To(ContainSubstring("3/4 chunks"))
	g.Expect(view).To(ContainSubstring("11 12"))
	g.Expect(view).To(ContainSubstring("/data/ds"))
}

func TestProgressModelKeepsRecentSeedsBounded(t *testing.T) {
	g := NewWithT(t)
	m := NewProgressModel("d", ThemeMinimal, nil)
	m, _ = step(t, m, RunStartedMsg{Total: 10, Pending: 10})
	for i := 0; i < 8; i++ {
		m, _ = step(t, m, ChunkDoneMsg{Seed: int64(i), Frames: 1, Done: i + 1, Total: 10})
	}
	g.Expect(m.recent).To(Equal([]int64{3, 4, 5, 6, 7}))
}

func TestProgressModelInterruptOnce(t *testing.T) {
	g := NewWithT(t)
	calls := 0
	m := NewProgressModel("d", ThemeMinimal, func() { calls++ })
	m, _ = step(t, m, RunStartedMsg{Total: 2, Pending: 2})

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	g.Expect(calls).To(Equal(1))
	g.Expect(m.View()).To(ContainSubstring("stopping"))
}

func TestProgressModelStoppingFromOutside(t *testing.T) {
	g := NewWithT(t)
	calls := 0
	m := NewProgressModel("d", ThemeMinimal, func() { calls++ })
	m, cmd := step(t, m, StoppingMsg{})
	g.Expect(cmd).To(BeNil())
	g.Expect(calls).To(BeZero())
	g.Expect(m.View()).To(ContainSubstring("stopping"))

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	g.Expect(calls).To(BeZero())
}

func TestProgressModelFinish(t *testing.T) {
	g := NewWithT(t)
	m := NewProgressModel("d", ThemeMinimal, nil)
	m, cmd := step(t, m, RunFinishedMsg{Err: errors.New("seed 3: boom")})
	g.Expect(cmd).NotTo(BeNil())
	g.Expect(cmd()).To(Equal(tea.Quit()))

	done, err := m.Done()
	g.Expect(done).To(BeTrue())
	g.Expect(err).To(MatchError("seed 3: boom"))
	g.Expect(m.View()).To(ContainSubstring("failed"))
}

func TestRenderReport(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.RunID = "run-7"
	cfg.Chunks = 4
	info := &dataset.Info{
		Dir:        "/data/ds",
		Config:     cfg,
		Seeds:      []int64{0, 1},
		Keys:       []string{"0-0", "0-1", "1-0", "1-1"},
		Sizes:      []int64{2048, 4096, 3072, 1024},
		Orphans:    []string{"2-0"},
		TrainKeys:  3,
		ValKeys:    1,
		TotalBytes: 10240,
	}
	out := RenderReport(info, ThemeMinimal, 40)
	g.Expect(out).To(ContainSubstring("run-7"))
	g.Expect(out).To(ContainSubstring("2/4 chunks"))
	g.Expect(out).To(ContainSubstring("3/1"))
	g.Expect(out).To(ContainSubstring("10.0 KiB"))
	g.Expect(out).To(ContainSubstring("artifact size"))
	g.Expect(out).To(ContainSubstring("frames per chunk"))
	g.Expect(out).To(ContainSubstring("1 unledgered"))
}

func TestHumanBytes(t *testing.T) {
	g := NewWithT(t)
	g.Expect(humanBytes(12)).To(Equal("12 B"))
	g.Expect(humanBytes(1536)).To(Equal("1.5 KiB"))
	g.Expect(humanBytes(3 << 20)).To(Equal("3.0 MiB"))
}

func TestGetTheme(t *testing.T) {
	g := NewWithT(t)
	g.Expect(GetTheme("ocean").Name).To(Equal("ocean"))
	g.Expect(GetTheme("missing").Name).To(Equal("cyberpunk"))
	g.Expect(ThemeNames()).To(ContainElement("minimal"))
}

func TestColorizeMask(t *testing.T) {
	g := NewWithT(t)
	mask := image.NewGray16(image.Rect(0, 0, 3, 1))
	mask.SetGray16(1, 0, color.Gray16{Y: 1})
	mask.SetGray16(2, 0, color.Gray16{Y: 2})

	out := ColorizeMask(mask)
	g.Expect(out.RGBAAt(0, 0)).To(Equal(color.RGBA{0, 0, 0, 255}))
	g.Expect(out.RGBAAt(1, 0)).NotTo(Equal(out.RGBAAt(2, 0)))
	g.Expect(out.RGBAAt(1, 0)).NotTo(Equal(color.RGBA{0, 0, 0, 255}))
}
