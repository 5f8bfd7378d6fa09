package dataset

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	pickle "github.com/kisielk/og-rek"

	"github.com/san-kum/posegen/internal/ledger"
)

const (
	AllKeysFile   = "keys.pkl"
	TrainKeysFile = "train_keys.pkl"
	ValKeysFile   = "val_keys.pkl"
)

// Split partitions All: Train is its first floor(ratio*len) keys and Val the
// rest, so Train followed by Val is All.
type Split struct {
	All   []string
	Train []string
	Val   []string
}

func ComputeSplit(keys []string, ratio float64) (Split, error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return Split{}, fmt.Errorf("%w: %v", ErrInvalidRatio, ratio)
	}
	n := int(math.Floor(ratio * float64(len(keys))))
	return Split{All: keys, Train: keys[:n:n], Val: keys[n:]}, nil
}

// WriteSplit persists the three key lists as pickled lists of str.
func WriteSplit(dir string, s Split) error {
	for _, f := range []struct {
		name string
		keys []string
	}{
		{AllKeysFile, s.All},
		{TrainKeysFile, s.Train},
		{ValKeysFile, s.Val},
	} {
		data, err := encodeKeys(f.keys)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := ledger.WriteFileAtomic(filepath.Join(dir, f.name), data); err != nil {
			return err
		}
	}
	return nil
}

func encodeKeys(keys []string) ([]byte, error) {
	list := make([]interface{}, len(keys))
	for i, k := range keys {
		list[i] = k
	}
	var buf bytes.Buffer
	if err := pickle.NewEncoder(&buf).Encode(list); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadKeyList loads one pickled key list.
func ReadKeyList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v, err := pickle.NewDecoder(f).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", path, v)
	}
	keys := make([]string, len(list))
	for i, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected str, got %T", path, i, e)
		}
		keys[i] = s
	}
	return keys, nil
}

// Resplit recomputes the key lists of dir from its key ledger.
func Resplit(dir string, ratio float64) (Split, error) {
	if !ledger.Exists(dir) {
		return Split{}, fmt.Errorf("%w: %s", ErrNoLedger, dir)
	}
	keys, err := ledger.ReadKeys(dir)
	if err != nil {
		return Split{}, err
	}
	s, err := ComputeSplit(keys, ratio)
	if err != nil {
		return Split{}, err
	}
	return s, WriteSplit(dir, s)
}
