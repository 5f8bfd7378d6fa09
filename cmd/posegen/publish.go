package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/san-kum/posegen/internal/objectstore"
)

func (a *app) publishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "upload a finished dataset to MinIO/S3 (POSEGEN_MINIO_* settings)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := requireDataset(a.v)
			if err != nil {
				return err
			}
			cfg, err := objectstore.ConfigFromViper(a.v)
			if err != nil {
				return fmt.Errorf("object store: %w", err)
			}
			client, err := objectstore.NewMinIOClient(cfg)
			if err != nil {
				return err
			}
			rep, err := objectstore.NewPublisher(client, cfg, a.log).Publish(cmd.Context(), dir, a.v.GetString("prefix"))
			if err != nil {
				return err
			}
			fmt.Printf("%d objects (%d bytes) to s3://%s/%s\n", len(rep.Objects), rep.Bytes, cfg.Bucket, rep.Prefix)
			return nil
		},
	}
	cmd.Flags().String("dataset", "", "dataset directory")
	cmd.Flags().String("prefix", "", "object prefix (default: run id)")
	cmd.Flags().String("minio.endpoint", "", "endpoint host:port")
	cmd.Flags().String("minio.bucket", "", "bucket")
	return cmd
}
