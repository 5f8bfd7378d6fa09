package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/san-kum/posegen/internal/logging"
	"github.com/san-kum/posegen/internal/objectstore"
	"github.com/san-kum/posegen/internal/scene"
)

type app struct {
	v      *viper.Viper
	log    *slog.Logger
	scenes *scene.Registry
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: newViper(), scenes: scene.NewRegistry()}

	root := &cobra.Command{
		Use:           "posegen",
		Short:         "synthetic 6D pose dataset generator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			a.log = logging.NewLogger(a.v.GetString("log-level"), os.Stderr)
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().String("theme", "cyberpunk", "terminal color theme")

	root.AddCommand(
		a.recordCmd(),
		a.recordChunkCmd(),
		a.rebuildLedgerCmd(),
		a.splitCmd(),
		a.inspectCmd(),
		a.showCmd(),
		a.publishCmd(),
		a.presetsCmd(),
	)
	return root
}

// newViper reads every setting from flags or POSEGEN_* variables, e.g.
// POSEGEN_WORKERS or POSEGEN_MINIO_ENDPOINT.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("POSEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	objectstore.SetDefaults(v)
	return v
}

func requireDataset(v *viper.Viper) (string, error) {
	dir := v.GetString("dataset")
	if dir == "" {
		return "", errors.New("--dataset is required")
	}
	return dir, nil
}
