// Package ledger maintains the two append-only registries at a dataset root:
// completed seeds and the keys they produced. The ledgers, not the contents
// of dumps/, decide what a dataset contains.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	SeedsFile = "seeds_recorded.txt"
	KeysFile  = "keys_recorded.txt"
	DumpsDir  = "dumps"
)

var ErrMalformedKey = errors.New("malformed key")

// Key names frame index of seed's chunk.
func Key(seed int64, index int) string {
	return strconv.FormatInt(seed, 10) + "-" + strconv.Itoa(index)
}

// ParseKey splits a key on its last dash, so negative seeds parse.
func ParseKey(key string) (seed int64, index int, err error) {
	i := strings.LastIndexByte(key, '-')
	if i <= 0 || i == len(key)-1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	seed, err = strconv.ParseInt(key[:i], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	index, err = strconv.Atoi(key[i+1:])
	if err != nil || index < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return seed, index, nil
}

// Exists reports whether dir holds a seed ledger.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, SeedsFile))
	return err == nil
}

// Writer appends to both ledgers. It must have a single owner.
type Writer struct {
	seeds *os.File
	keys  *os.File
}

func Open(dir string) (*Writer, error) {
	seeds, err := os.OpenFile(filepath.Join(dir, SeedsFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	keys, err := os.OpenFile(filepath.Join(dir, KeysFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		seeds.Close()
		return nil, err
	}
	return &Writer{seeds: seeds, keys: keys}, nil
}

// Append records one completed chunk. Keys are made durable before the seed
// line, so a seed line always implies its keys.
func (w *Writer) Append(seed int64, keys []string) error {
	if len(keys) > 0 {
		if _, err := w.keys.WriteString(strings.Join(keys, "\n") + "\n"); err != nil {
			return fmt.Errorf("append keys of seed %d: %w", seed, err)
		}
		if err := w.keys.Sync(); err != nil {
			return fmt.Errorf("sync keys: %w", err)
		}
	}
	if _, err := w.seeds.WriteString(strconv.FormatInt(seed, 10) + "\n"); err != nil {
		return fmt.Errorf("append seed %d: %w", seed, err)
	}
	return w.seeds.Sync()
}

func (w *Writer) Close() error {
	return errors.Join(w.keys.Close(), w.seeds.Close())
}

// State is the reconciled content of both ledgers, in append order.
type State struct {
	Seeds []int64
	Keys  []string
	done  map[int64]bool
}

func (s *State) Done(seed int64) bool { return s.done[seed] }

// Read loads both ledgers. Duplicate lines collapse and keys whose seed line
// is missing are dropped: they belong to an append that did not finish.
func Read(dir string) (*State, error) {
	seedLines, err := readLines(filepath.Join(dir, SeedsFile))
	if err != nil {
		return nil, err
	}
	keyLines, err := readLines(filepath.Join(dir, KeysFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	st := &State{done: make(map[int64]bool, len(seedLines))}
	for i, line := range seedLines {
		seed, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", SeedsFile, i+1, err)
		}
		if st.done[seed] {
			continue
		}
		st.done[seed] = true
		st.Seeds = append(st.Seeds, seed)
	}

	seen := make(map[string]bool, len(keyLines))
	for i, key := range keyLines {
		seed, _, err := ParseKey(key)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", KeysFile, i+1, err)
		}
		if !st.done[seed] || seen[key] {
			continue
		}
		seen[key] = true
		st.Keys = append(st.Keys, key)
	}
	return st, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// ReadKeys returns the reconciled key ledger of dir.
func ReadKeys(dir string) ([]string, error) {
	st, err := Read(dir)
	if err != nil {
		return nil, err
	}
	return st.Keys, nil
}
