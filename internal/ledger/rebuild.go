package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Rebuild reconstructs both ledgers from the artifacts under dumps/. Keys are
// ordered by seed then index. When framesPerChunk is positive, only seeds
// holding exactly indices [0, framesPerChunk) are kept; the rest are
// reported as incomplete and left out of the ledgers.
func Rebuild(dir string, framesPerChunk int) (st *State, incomplete []int64, err error) {
	entries, err := os.ReadDir(filepath.Join(dir, DumpsDir))
	if err != nil {
		return nil, nil, err
	}

	chunks := make(map[int64]map[int]bool)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if dot := strings.IndexByte(name, '.'); dot >= 0 {
			name = name[:dot]
		}
		seed, index, err := ParseKey(name)
		if err != nil {
			continue
		}
		if chunks[seed] == nil {
			chunks[seed] = make(map[int]bool)
		}
		chunks[seed][index] = true
	}

	seeds := make([]int64, 0, len(chunks))
	for seed := range chunks {
		seeds = append(seeds, seed)
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })

	st = &State{done: make(map[int64]bool)}
	for _, seed := range seeds {
		idx := make([]int, 0, len(chunks[seed]))
		for i := range chunks[seed] {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		if framesPerChunk > 0 && !complete(idx, framesPerChunk) {
			incomplete = append(incomplete, seed)
			continue
		}
		st.done[seed] = true
		st.Seeds = append(st.Seeds, seed)
		for _, i := range idx {
			st.Keys = append(st.Keys, Key(seed, i))
		}
	}

	if err := writeLedger(dir, st); err != nil {
		return nil, nil, err
	}
	return st, incomplete, nil
}

func complete(sorted []int, n int) bool {
	if len(sorted) != n {
		return false
	}
	for i, v := range sorted {
		if v != i {
			return false
		}
	}
	return true
}

func writeLedger(dir string, st *State) error {
	var seeds, keys strings.Builder
	for _, s := range st.Seeds {
		fmt.Fprintf(&seeds, "%d\n", s)
	}
	for _, k := range st.Keys {
		keys.WriteString(k)
		keys.WriteByte('\n')
	}
	if err := WriteFileAtomic(filepath.Join(dir, KeysFile), []byte(keys.String())); err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(dir, SeedsFile), []byte(seeds.String()))
}

// WriteFileAtomic writes data to a temporary sibling of path, syncs it and
// renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
