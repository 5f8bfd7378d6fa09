package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/dataset"
	"github.com/san-kum/posegen/internal/ledger"
)

func (a *app) rebuildLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild-ledger",
		Short: "rebuild the seed and key ledgers from the artifacts in dumps/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := requireDataset(a.v)
			if err != nil {
				return err
			}
			frames := a.v.GetInt("frames")
			if !a.v.IsSet("frames") {
				if cfg, err := savedConfig(dir); err == nil {
					frames = cfg.FramesPerChunk
				}
			}
			st, incomplete, err := ledger.Rebuild(dir, frames)
			if err != nil {
				return err
			}
			for _, seed := range incomplete {
				a.log.Warn("incomplete chunk left out of the ledger", "seed", seed)
			}
			fmt.Printf("%d seeds, %d keys ledgered; %d incomplete chunks skipped\n", len(st.Seeds), len(st.Keys), len(incomplete))
			return nil
		},
	}
	cmd.Flags().String("dataset", "", "dataset directory")
	cmd.Flags().Int("frames", 0, "required frames per chunk; 0 keeps partial chunks (default from config.yaml)")
	return cmd
}

func (a *app) splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "recompute the train/validation key lists from the key ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := requireDataset(a.v)
			if err != nil {
				return err
			}
			ratio := a.v.GetFloat64("ratio")
			if !a.v.IsSet("ratio") {
				if cfg, err := savedConfig(dir); err == nil {
					ratio = cfg.TrainRatio
				}
			}
			s, err := dataset.Resplit(dir, ratio)
			if err != nil {
				return err
			}
			fmt.Printf("%d keys: %d train, %d val (ratio %.3f)\n", len(s.All), len(s.Train), len(s.Val), ratio)
			return nil
		},
	}
	cmd.Flags().String("dataset", "", "dataset directory")
	cmd.Flags().Float64("ratio", config.DefaultTrainRatio, "train ratio (default from config.yaml)")
	return cmd
}

func savedConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return cfg, err
}
