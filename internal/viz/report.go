package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/posegen/internal/dataset"
)

// RenderReport formats a dataset summary followed by plots of artifact size
// per key and frames per seed. plotWidth of 0 lets asciigraph pick.
func RenderReport(info *dataset.Info, theme Theme, plotWidth int) string {
	s := NewStyles(theme)
	var b strings.Builder

	b.WriteString(s.Title.Render("dataset "+info.Dir) + "\n")
	if cfg := info.Config; cfg != nil {
		b.WriteString(s.Metric("run", cfg.RunID) + "   ")
		b.WriteString(s.Metric("scene", cfg.Scene.Type) + "   ")
		b.WriteString(s.Metric("seeds", fmt.Sprintf("[%d, %d)", cfg.StartSeed, cfg.StartSeed+int64(cfg.Chunks))) + "\n")
		b.WriteString(s.Metric("codec", cfg.Frame.RGBCodec) + "   ")
		b.WriteString(s.Metric("compression", orNone(cfg.Frame.Compression)) + "   ")
		b.WriteString(s.Metric("frames/chunk", fmt.Sprintf("%d", cfg.FramesPerChunk)) + "\n")
		if cfg.Chunks > 0 {
			b.WriteString(s.ProgressBar(float64(len(info.Seeds))/float64(cfg.Chunks), 30))
			b.WriteString(fmt.Sprintf(" %d/%d chunks\n", len(info.Seeds), cfg.Chunks))
		}
	}
	b.WriteString(s.Metric("chunks", fmt.Sprintf("%d", len(info.Seeds))) + "   ")
	b.WriteString(s.Metric("keys", fmt.Sprintf("%d", len(info.Keys))) + "   ")
	b.WriteString(s.Metric("train/val", fmt.Sprintf("%d/%d", info.TrainKeys, info.ValKeys)) + "   ")
	b.WriteString(s.Metric("size", humanBytes(info.TotalBytes)) + "\n")

	if len(info.Missing) > 0 {
		b.WriteString(s.Failed.Render(fmt.Sprintf("%d ledgered keys have no artifact, e.g. %s", len(info.Missing), info.Missing[0])) + "\n")
	}
	if len(info.Orphans) > 0 {
		b.WriteString(s.Subtle.Render(fmt.Sprintf("%d unledgered artifacts (interrupted chunks)", len(info.Orphans))) + "\n")
	}

	if len(info.Sizes) > 1 {
		kib := make([]float64, len(info.Sizes))
		for i, v := range info.Sizes {
			kib[i] = float64(v) / 1024
		}
		b.WriteString("\n" + plot(kib, plotWidth, "artifact size (KiB) by key") + "\n")
	}
	if fps := info.FramesPerSeed(); len(fps) > 1 {
		data := make([]float64, len(fps))
		for i, v := range fps {
			data[i] = float64(v)
		}
		b.WriteString("\n" + plot(data, plotWidth, "frames per chunk, ledger order") + "\n")
	}
	return b.String()
}

func plot(data []float64, width int, caption string) string {
	opts := []asciigraph.Option{asciigraph.Height(8), asciigraph.Caption(caption)}
	if width > 0 {
		opts = append(opts, asciigraph.Width(width))
	}
	return asciigraph.Plot(data, opts...)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
