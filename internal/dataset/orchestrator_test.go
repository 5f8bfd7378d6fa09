package dataset_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/dataset"
	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/ledger"
	"github.com/san-kum/posegen/internal/recorder"
	"github.com/san-kum/posegen/internal/scene"
)

type progress struct {
	started [2]int
	done    []int
}

func (p *progress) RunStarted(total, pending int) { p.started = [2]int{total, pending} }
func (p *progress) ChunkDone(_ recorder.Result, done, _ int) {
	p.done = append(p.done, done)
}

func lines(path string) []string {
	data, err := os.ReadFile(path)
	Expect(err).NotTo(HaveOccurred())
	return strings.Fields(string(data))
}

var _ = Describe("Orchestrator", func() {
	var (
		dir  string
		cfg  *config.Config
		spy  *spyDispatcher
		orch *dataset.Orchestrator
	)

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), "ds")
		cfg = config.DefaultConfig()
		cfg.DatasetDir = dir
		cfg.Chunks = 2
		cfg.FramesPerChunk = 3
		cfg.StartSeed = 10
		cfg.TrainRatio = 0.5
		cfg.Scene = scene.Config{Type: stubType}
		cfg.Frame = frame.Options{RGBCodec: frame.CodecPNG}

		rec, err := dataset.NewRecorder(cfg, stubRegistry(), nil)
		Expect(err).NotTo(HaveOccurred())
		spy = &spyDispatcher{inner: dataset.NewInProcess(rec), workers: 1}
		orch = dataset.NewOrchestrator(spy, nil)
	})

	record := func(opts dataset.RunOptions) (*dataset.Summary, error) {
		return orch.RecordDataset(context.Background(), cfg, opts)
	}

	Describe("a fresh run", func() {
		It("records one chunk per seed and ledgers every key", func() {
			sum, err := record(dataset.RunOptions{})
			Expect(err).NotTo(HaveOccurred())

			Expect(lines(filepath.Join(dir, ledger.SeedsFile))).To(Equal([]string{"10", "11"}))
			keys := lines(filepath.Join(dir, ledger.KeysFile))
			Expect(keys).To(ConsistOf("10-0", "10-1", "10-2", "11-0", "11-1", "11-2"))
			for _, k := range keys {
				Expect(filepath.Join(dir, "dumps", k+".msgpack")).To(BeARegularFile())
			}
			Expect(sum.Recorded).To(Equal([]int64{10, 11}))
			Expect(sum.Split.All).To(Equal(keys))
		})

		It("writes a split whose parts concatenate to the key ledger", func() {
			_, err := record(dataset.RunOptions{})
			Expect(err).NotTo(HaveOccurred())

			all, err := dataset.ReadKeyList(filepath.Join(dir, dataset.AllKeysFile))
			Expect(err).NotTo(HaveOccurred())
			train, err := dataset.ReadKeyList(filepath.Join(dir, dataset.TrainKeysFile))
			Expect(err).NotTo(HaveOccurred())
			val, err := dataset.ReadKeyList(filepath.Join(dir, dataset.ValKeysFile))
			Expect(err).NotTo(HaveOccurred())

			Expect(all).To(Equal(lines(filepath.Join(dir, ledger.KeysFile))))
			Expect(train).To(HaveLen(3))
			Expect(append(train, val...)).To(Equal(all))
		})

		It("persists the configuration for resume", func() {
			_, err := record(dataset.RunOptions{})
			Expect(err).NotTo(HaveOccurred())
			saved, err := config.Load(filepath.Join(dir, config.FileName))
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.RunID).To(Equal(cfg.RunID))
			Expect(saved.StartSeed).To(Equal(int64(10)))
			Expect(saved.Scene.Type).To(Equal(stubType))
		})

		It("reports progress to the observer", func() {
			p := &progress{}
			orch.SetObserver(p)
			_, err := record(dataset.RunOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.started).To(Equal([2]int{2, 2}))
			Expect(p.done).To(Equal([]int{1, 2}))
		})
	})

	Describe("target directory checks", func() {
		It("refuses an existing directory without overwrite", func() {
			Expect(os.MkdirAll(dir, 0755)).To(Succeed())
			_, err := record(dataset.RunOptions{})
			Expect(err).To(MatchError(dataset.ErrDatasetExists))
			Expect(spy.dispatched()).To(BeEmpty())
		})

		It("replaces an existing directory with overwrite", func() {
			Expect(os.MkdirAll(dir, 0755)).To(Succeed())
			stale := filepath.Join(dir, "stale.txt")
			Expect(os.WriteFile(stale, []byte("x"), 0644)).To(Succeed())

			_, err := record(dataset.RunOptions{Overwrite: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(stale).NotTo(BeAnExistingFile())
		})

		It("requires a seed ledger to resume", func() {
			_, err := record(dataset.RunOptions{Resume: true})
			Expect(err).To(MatchError(dataset.ErrNoLedger))

			Expect(os.MkdirAll(dir, 0755)).To(Succeed())
			_, err = record(dataset.RunOptions{Resume: true})
			Expect(err).To(MatchError(dataset.ErrNoLedger))
		})

		It("rejects a train ratio outside [0, 1]", func() {
			cfg.TrainRatio = 1.5
			_, err := record(dataset.RunOptions{})
			Expect(err).To(MatchError(dataset.ErrInvalidRatio))
		})
	})

	Describe("resume", func() {
		It("dispatches only seeds missing from the ledger", func() {
			cfg.Chunks = 1
			_, err := record(dataset.RunOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(lines(filepath.Join(dir, ledger.KeysFile))).To(HaveLen(3))

			spy.seen = nil
			cfg.Chunks = 2
			sum, err := record(dataset.RunOptions{Resume: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(spy.dispatched()).To(Equal([]int64{11}))
			Expect(sum.Pending).To(Equal(1))

			keys := lines(filepath.Join(dir, ledger.KeysFile))
			Expect(keys).To(HaveLen(6))
			Expect(keys[3:]).To(Equal([]string{"11-0", "11-1", "11-2"}))
			Expect(sum.Split.All).To(Equal(keys))
		})

		It("ends with the same keys as an uninterrupted run", func() {
			cfg.Chunks = 4
			spy.failOn = map[int64]bool{12: true}
			_, err := record(dataset.RunOptions{})
			Expect(err).To(HaveOccurred())

			spy.failOn = nil
			_, err = record(dataset.RunOptions{Resume: true})
			Expect(err).NotTo(HaveOccurred())
			resumed := lines(filepath.Join(dir, ledger.KeysFile))

			cfg.DatasetDir = filepath.Join(GinkgoT().TempDir(), "clean")
			_, err = record(dataset.RunOptions{})
			Expect(err).NotTo(HaveOccurred())
			clean := lines(filepath.Join(cfg.DatasetDir, ledger.KeysFile))

			Expect(resumed).To(ConsistOf(clean))
			Expect(lines(filepath.Join(dir, ledger.SeedsFile))).To(HaveLen(4))
		})

		It("recomputes the split when nothing is pending", func() {
			_, err := record(dataset.RunOptions{})
			Expect(err).NotTo(HaveOccurred())
			spy.seen = nil

			cfg.TrainRatio = 1
			sum, err := record(dataset.RunOptions{Resume: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(spy.dispatched()).To(BeEmpty())
			Expect(sum.Split.Train).To(HaveLen(6))
			Expect(sum.Split.Val).To(BeEmpty())
		})
	})

	Describe("failures", func() {
		It("fails the run and leaves the failed seed out of the ledger", func() {
			spy.failOn = map[int64]bool{11: true}
			_, err := record(dataset.RunOptions{})
			Expect(err).To(MatchError(ContainSubstring("seed 11")))

			Expect(lines(filepath.Join(dir, ledger.SeedsFile))).To(Equal([]string{"10"}))
			Expect(filepath.Join(dir, dataset.AllKeysFile)).NotTo(BeAnExistingFile())
		})
	})

	Describe("cancellation", func() {
		It("lets the running chunk finish and stops dispatching", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			spy.hook = func(int64) { cancel() }

			sum, err := orch.RecordDataset(ctx, cfg, dataset.RunOptions{})
			Expect(err).To(MatchError(context.Canceled))
			Expect(spy.dispatched()).To(Equal([]int64{10}))
			Expect(sum.Recorded).To(Equal([]int64{10}))
			Expect(lines(filepath.Join(dir, ledger.SeedsFile))).To(Equal([]string{"10"}))
		})
	})

	Describe("parallel workers", func() {
		It("records every seed exactly once in completion order", func() {
			cfg.Chunks = 8
			spy.workers = 3
			_, err := record(dataset.RunOptions{})
			Expect(err).NotTo(HaveOccurred())

			seeds := lines(filepath.Join(dir, ledger.SeedsFile))
			want := make([]string, 0, 8)
			for s := 10; s < 18; s++ {
				want = append(want, strconv.Itoa(s))
			}
			// Ledger order follows completion and may differ between runs.
			Expect(seeds).To(ConsistOf(want))

			st, err := ledger.Read(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Keys).To(HaveLen(24))
			Expect(st.Seeds).To(HaveLen(8))
		})
	})
})

var _ = Describe("Inspect", func() {
	It("reports ledgered, missing and orphaned artifacts", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "ds")
		cfg := config.DefaultConfig()
		cfg.DatasetDir = dir
		cfg.Chunks = 2
		cfg.FramesPerChunk = 2
		cfg.TrainRatio = 0.5
		cfg.Scene = scene.Config{Type: stubType}
		cfg.Frame = frame.Options{RGBCodec: frame.CodecPNG}
		rec, err := dataset.NewRecorder(cfg, stubRegistry(), nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = dataset.NewOrchestrator(dataset.NewInProcess(rec), nil).RecordDataset(context.Background(), cfg, dataset.RunOptions{})
		Expect(err).NotTo(HaveOccurred())

		dumps := filepath.Join(dir, ledger.DumpsDir)
		Expect(os.Remove(filepath.Join(dumps, "1-1.msgpack"))).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dumps, "7-0.msgpack"), []byte("x"), 0644)).To(Succeed())

		info, err := dataset.Inspect(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Config.Chunks).To(Equal(2))
		Expect(info.Seeds).To(Equal([]int64{0, 1}))
		Expect(info.Keys).To(HaveLen(4))
		Expect(info.Sizes).To(HaveLen(4))
		Expect(info.Missing).To(Equal([]string{"1-1"}))
		Expect(info.Orphans).To(Equal([]string{"7-0"}))
		Expect(info.TrainKeys + info.ValKeys).To(Equal(4))
		Expect(info.FramesPerSeed()).To(Equal([]int{2, 2}))
		Expect(info.TotalBytes).To(BeNumerically(">", 0))
	})

	It("needs a ledger", func() {
		_, err := dataset.Inspect(GinkgoT().TempDir())
		Expect(err).To(MatchError(dataset.ErrNoLedger))
	})
})
