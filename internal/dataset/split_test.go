package dataset_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/posegen/internal/dataset"
	"github.com/san-kum/posegen/internal/ledger"
)

func TestComputeSplit(t *testing.T) {
	keys := []string{"1-0", "1-1", "2-0", "2-1", "3-0", "3-1", "4-0"}
	tests := []struct {
		ratio float64
		train int
	}{
		{0, 0},
		{0.5, 3},
		{0.95, 6},
		{0.99, 6},
		{1, 7},
	}
	for _, tt := range tests {
		g := NewWithT(t)
		s, err := dataset.ComputeSplit(keys, tt.ratio)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(s.Train).To(HaveLen(tt.train), "ratio %v", tt.ratio)
		g.Expect(len(s.Train) + len(s.Val)).To(Equal(len(keys)))
		g.Expect(append(s.Train, s.Val...)).To(Equal(keys))
	}

	g := NewWithT(t)
	s, err := dataset.ComputeSplit(keys, 0.5)
	g.Expect(err).NotTo(HaveOccurred())
	_ = append(s.Train, "extra")
	g.Expect(s.Val[0]).To(Equal("2-1"))

	for _, bad := range []float64{-0.1, 1.01, math.NaN()} {
		_, err := dataset.ComputeSplit(keys, bad)
		g.Expect(err).To(MatchError(dataset.ErrInvalidRatio))
	}
}

func TestComputeSplitEmpty(t *testing.T) {
	g := NewWithT(t)
	s, err := dataset.ComputeSplit(nil, 0.5)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Train).To(BeEmpty())
	g.Expect(s.Val).To(BeEmpty())
}

func TestWriteSplitRoundTrip(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	s, err := dataset.ComputeSplit([]string{"5-0", "5-1", "6-0"}, 0.7)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(dataset.WriteSplit(dir, s)).To(Succeed())

	for name, want := range map[string][]string{
		dataset.AllKeysFile:   {"5-0", "5-1", "6-0"},
		dataset.TrainKeysFile: {"5-0", "5-1"},
		dataset.ValKeysFile:   {"6-0"},
	} {
		got, err := dataset.ReadKeyList(filepath.Join(dir, name))
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(got).To(Equal(want), name)
	}
}

func TestWriteSplitEmptyLists(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	s, err := dataset.ComputeSplit([]string{"1-0"}, 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(dataset.WriteSplit(dir, s)).To(Succeed())

	val, err := dataset.ReadKeyList(filepath.Join(dir, dataset.ValKeysFile))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(val).To(BeEmpty())
}

func TestResplit(t *testing.T) {
	g := NewWithT(t)
	_, err := dataset.Resplit(t.TempDir(), 0.5)
	g.Expect(err).To(MatchError(dataset.ErrNoLedger))

	dir := t.TempDir()
	g.Expect(os.WriteFile(filepath.Join(dir, ledger.SeedsFile), []byte("1\n2\n"), 0644)).To(Succeed())
	g.Expect(os.WriteFile(filepath.Join(dir, ledger.KeysFile), []byte("1-0\n1-1\n2-0\n2-1\n"), 0644)).To(Succeed())

	s, err := dataset.Resplit(dir, 0.25)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Train).To(Equal([]string{"1-0"}))

	train, err := dataset.ReadKeyList(filepath.Join(dir, dataset.TrainKeysFile))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(train).To(Equal(s.Train))
}

func TestReadKeyListRejectsGarbage(t *testing.T) {
	g := NewWithT(t)
	path := filepath.Join(t.TempDir(), "bad.pkl")
	g.Expect(os.WriteFile(path, []byte("not a pickle"), 0644)).To(Succeed())
	_, err := dataset.ReadKeyList(path)
	g.Expect(err).To(HaveOccurred())
}
