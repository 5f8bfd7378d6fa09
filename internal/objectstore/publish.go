package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/dataset"
	"github.com/san-kum/posegen/internal/ledger"
	"github.com/san-kum/posegen/internal/logging"
)

var ErrIncompleteDataset = errors.New("dataset has no key lists")

// Publisher mirrors a finished dataset directory into a bucket.
type Publisher struct {
	client Bucket
	bucket string
	region string
	log    *slog.Logger
}

func NewPublisher(client Bucket, cfg Config, log *slog.Logger) *Publisher {
	return &Publisher{client: client, bucket: cfg.Bucket, region: cfg.Region, log: logging.OrDiscard(log)}
}

type PublishReport struct {
	Prefix  string
	Objects []string
	Bytes   int64
}

// Publish uploads config, ledgers, key lists and every artifact of dir under
// prefix/. An empty prefix uses the run id from config.yaml. Metadata goes
// first and artifacts follow in key order, so a listing is reproducible.
func (p *Publisher) Publish(ctx context.Context, dir, prefix string) (*PublishReport, error) {
	if _, err := os.Stat(filepath.Join(dir, dataset.AllKeysFile)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteDataset, dir)
	}
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = cfg.RunID
	}
	prefix = strings.Trim(prefix, "/")

	files, err := datasetFiles(dir, cfg.Frame.Ext())
	if err != nil {
		return nil, err
	}
	if err := EnsureBucket(ctx, p.client, p.bucket, p.region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", p.bucket, err)
	}

	rep := &PublishReport{Prefix: prefix}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		object := path.Join(prefix, filepath.ToSlash(rel))
		info, err := p.client.FPutObject(ctx, p.bucket, object, filepath.Join(dir, rel),
			minio.PutObjectOptions{ContentType: contentType(rel)})
		if err != nil {
			return rep, fmt.Errorf("upload %s: %w", object, err)
		}
		rep.Objects = append(rep.Objects, object)
		rep.Bytes += info.Size
		p.log.Debug("uploaded", "object", object, "bytes", info.Size)
	}
	p.log.Info("dataset published", "bucket", p.bucket, "prefix", prefix, "objects", len(rep.Objects), "bytes", rep.Bytes)
	return rep, nil
}

// datasetFiles lists the metadata files and the artifact of every ledgered
// key. Artifacts of unledgered chunks are left out.
func datasetFiles(dir, ext string) ([]string, error) {
	files := []string{config.FileName, ledger.SeedsFile, ledger.KeysFile,
		dataset.AllKeysFile, dataset.TrainKeysFile, dataset.ValKeysFile}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return nil, err
		}
	}

	keys, err := ledger.ReadKeys(dir)
	if err != nil {
		return nil, err
	}
	dumps := make([]string, 0, len(keys))
	for _, key := range keys {
		rel := filepath.Join(ledger.DumpsDir, key+ext)
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			return nil, fmt.Errorf("ledgered key %s: %w", key, err)
		}
		dumps = append(dumps, rel)
	}
	sort.Slice(dumps, func(i, j int) bool { return artifactLess(dumps[i], dumps[j]) })
	return append(files, dumps...), nil
}

// artifactLess orders artifacts by seed then frame index.
func artifactLess(a, b string) bool {
	sa, ia, errA := ledger.ParseKey(keyOf(a))
	sb, ib, errB := ledger.ParseKey(keyOf(b))
	if errA != nil || errB != nil {
		return a < b
	}
	if sa != sb {
		return sa < sb
	}
	return ia < ib
}

func keyOf(rel string) string {
	name := filepath.Base(rel)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(name, ".msgpack"):
		return "application/msgpack"
	case strings.HasSuffix(name, ".yaml"):
		return "application/yaml"
	case strings.HasSuffix(name, ".txt"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
