package main

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/posegen/internal/dataset"
	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/ledger"
	"github.com/san-kum/posegen/internal/viz"
)

func (a *app) inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "summarize a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := requireDataset(a.v)
			if err != nil {
				return err
			}
			info, err := dataset.Inspect(dir)
			if err != nil {
				return err
			}
			fmt.Print(viz.RenderReport(info, viz.GetTheme(a.v.GetString("theme")), a.v.GetInt("width")))
			return nil
		},
	}
	cmd.Flags().String("dataset", "", "dataset directory")
	cmd.Flags().Int("width", 80, "plot width")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show KEY",
		Short: "decode one artifact into images and print its annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := requireDataset(a.v)
			if err != nil {
				return err
			}
			key := args[0]
			if _, _, err := ledger.ParseKey(key); err != nil {
				return err
			}
			data, err := readArtifact(dir, key)
			if err != nil {
				return err
			}
			dec, err := frame.Decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}

			out := a.v.GetString("out")
			if err := os.MkdirAll(out, 0755); err != nil {
				return err
			}
			rgbPath := filepath.Join(out, key+"-rgb."+map[string]string{frame.CodecJPEG: "jpg", frame.CodecPNG: "png"}[dec.RGBFormat])
			if err := writeImage(rgbPath, dec.RGB, dec.RGBFormat); err != nil {
				return err
			}
			maskPath := filepath.Join(out, key+"-mask.png")
			if err := writeImage(maskPath, viz.ColorizeMask(dec.Mask), frame.CodecPNG); err != nil {
				return err
			}

			doc, err := yaml.Marshal(map[string]any{
				"key":         key,
				"version":     dec.Version,
				"size":        []int{dec.Width, dec.Height},
				"rgb":         rgbPath,
				"mask":        maskPath,
				"annotations": dec.Annotations,
			})
			if err != nil {
				return err
			}
			fmt.Print(string(doc))
			return nil
		},
	}
	cmd.Flags().String("dataset", "", "dataset directory")
	cmd.Flags().String("out", ".", "directory for the decoded images")
	return cmd
}

func readArtifact(dir, key string) ([]byte, error) {
	for _, ext := range []string{".msgpack", ".msgpack.zst"} {
		data, err := os.ReadFile(filepath.Join(dir, ledger.DumpsDir, key+ext))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no artifact for key %s in %s", key, dir)
}

func writeImage(path string, img image.Image, codec string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if codec == frame.CodecJPEG {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	} else {
		err = png.Encode(f, img)
	}
	return errors.Join(err, f.Close())
}
