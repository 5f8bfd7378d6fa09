package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/dataset"
	"github.com/san-kum/posegen/internal/ledger"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	return root.ExecuteContext(context.Background())
}

func TestRecordSplitShow(t *testing.T) {
	g := NewWithT(t)
	dir := filepath.Join(t.TempDir(), "ds")

	g.Expect(execute(t, "record", "--dataset", dir, "--preset", "smoke", "--chunks", "2", "--frames", "2")).To(Succeed())

	keys, err := dataset.ReadKeyList(filepath.Join(dir, dataset.AllKeysFile))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(keys).To(ConsistOf("0-0", "0-1", "1-0", "1-1"))

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.CreatedAt).NotTo(BeZero())
	g.Expect(time.Since(cfg.CreatedAt)).To(BeNumerically("<", time.Hour))

	g.Expect(execute(t, "record", "--dataset", dir, "--preset", "smoke")).To(MatchError(dataset.ErrDatasetExists))
	g.Expect(execute(t, "record", "--dataset", dir, "--resume", "--chunks", "3", "--frames", "5")).
		To(MatchError(ContainSubstring("--frames cannot change on --resume")))
	g.Expect(execute(t, "record", "--dataset", dir, "--resume", "--start-seed", "9", "--train-ratio", "0.1")).
		To(MatchError(ContainSubstring("--start-seed, --train-ratio")))
	g.Expect(execute(t, "record", "--dataset", dir, "--resume", "--chunks", "3")).To(Succeed())

	resumed, err := config.Load(filepath.Join(dir, config.FileName))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resumed.CreatedAt).To(Equal(cfg.CreatedAt))
	g.Expect(resumed.FramesPerChunk).To(Equal(2))
	st, err := ledger.Read(dir)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(st.Seeds).To(ConsistOf(int64(0), int64(1), int64(2)))

	g.Expect(execute(t, "split", "--dataset", dir, "--ratio", "0.5")).To(Succeed())
	train, err := dataset.ReadKeyList(filepath.Join(dir, dataset.TrainKeysFile))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(train).To(HaveLen(3))

	out := t.TempDir()
	g.Expect(execute(t, "show", "1-0", "--dataset", dir, "--out", out)).To(Succeed())
	g.Expect(filepath.Join(out, "1-0-rgb.png")).To(BeAnExistingFile())
	g.Expect(filepath.Join(out, "1-0-mask.png")).To(BeAnExistingFile())
	g.Expect(execute(t, "show", "7-0", "--dataset", dir, "--out", out)).To(HaveOccurred())
	g.Expect(execute(t, "show", "nope", "--dataset", dir, "--out", out)).To(MatchError(ledger.ErrMalformedKey))

	g.Expect(execute(t, "inspect", "--dataset", dir)).To(Succeed())
}

func TestRebuildLedger(t *testing.T) {
	g := NewWithT(t)
	dir := filepath.Join(t.TempDir(), "ds")
	g.Expect(execute(t, "record", "--dataset", dir, "--preset", "smoke")).To(Succeed())

	g.Expect(os.Remove(filepath.Join(dir, ledger.SeedsFile))).To(Succeed())
	g.Expect(os.Remove(filepath.Join(dir, ledger.KeysFile))).To(Succeed())
	g.Expect(execute(t, "rebuild-ledger", "--dataset", dir)).To(Succeed())

	st, err := ledger.Read(dir)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(st.Seeds).To(ConsistOf(int64(0), int64(1)))
	g.Expect(st.Keys).To(HaveLen(6))
}

func TestDatasetRequired(t *testing.T) {
	g := NewWithT(t)
	g.Expect(execute(t, "inspect")).To(MatchError(ContainSubstring("--dataset")))
	g.Expect(execute(t, "record", "--dataset", t.TempDir()+"/x", "--preset", "missing")).To(MatchError(ContainSubstring("unknown preset")))
}
