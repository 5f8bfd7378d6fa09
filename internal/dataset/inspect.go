package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/ledger"
)

// Info summarizes a dataset directory.
type Info struct {
	Dir    string
	Config *config.Config
	Seeds  []int64
	Keys   []string
	// Sizes holds the artifact size in bytes of each ledgered key, in ledger
	// order; missing artifacts count as 0 and are listed in Missing.
	Sizes   []int64
	Missing []string
	// Orphans are artifacts under dumps/ that no ledger line accounts for.
	Orphans    []string
	TrainKeys  int
	ValKeys    int
	TotalBytes int64
}

// FramesPerSeed counts ledgered keys per seed, in seed-ledger order.
func (i *Info) FramesPerSeed() []int {
	counts := make(map[int64]int, len(i.Seeds))
	for _, k := range i.Keys {
		if seed, _, err := ledger.ParseKey(k); err == nil {
			counts[seed]++
		}
	}
	out := make([]int, len(i.Seeds))
	for n, s := range i.Seeds {
		out[n] = counts[s]
	}
	return out
}

func Inspect(dir string) (*Info, error) {
	if !ledger.Exists(dir) {
		return nil, fmt.Errorf("%w: %s", ErrNoLedger, dir)
	}
	st, err := ledger.Read(dir)
	if err != nil {
		return nil, err
	}
	info := &Info{Dir: dir, Seeds: st.Seeds, Keys: st.Keys}
	if cfg, err := config.Load(filepath.Join(dir, config.FileName)); err == nil {
		info.Config = cfg
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	files := make(map[string]int64)
	entries, err := os.ReadDir(filepath.Join(dir, ledger.DumpsDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		key := e.Name()
		if i := strings.IndexByte(key, '.'); i >= 0 {
			key = key[:i]
		}
		files[key] = fi.Size()
	}

	ledgered := make(map[string]bool, len(st.Keys))
	info.Sizes = make([]int64, len(st.Keys))
	for n, k := range st.Keys {
		ledgered[k] = true
		size, ok := files[k]
		if !ok {
			info.Missing = append(info.Missing, k)
		}
		info.Sizes[n] = size
		info.TotalBytes += size
	}
	for k := range files {
		if !ledgered[k] {
			info.Orphans = append(info.Orphans, k)
		}
	}
	sortKeys(info.Orphans)

	if train, err := ReadKeyList(filepath.Join(dir, TrainKeysFile)); err == nil {
		info.TrainKeys = len(train)
	}
	if val, err := ReadKeyList(filepath.Join(dir, ValKeysFile)); err == nil {
		info.ValKeys = len(val)
	}
	return info, nil
}

// sortKeys orders keys by seed then index.
func sortKeys(keys []string) {
	type parsed struct {
		seed  int64
		index int
	}
	p := make(map[string]parsed, len(keys))
	for _, k := range keys {
		s, i, _ := ledger.ParseKey(k)
		p[k] = parsed{s, i}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := p[keys[i]], p[keys[j]]
		if a.seed != b.seed {
			return a.seed < b.seed
		}
		return a.index < b.index
	})
}
