package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/menta2k/image-preprocessor/internal/utils"
	"github.com/menta2k/image-preprocessor/pkg/analyzer"
	"github.com/menta2k/image-preprocessor/pkg/annotation"
	"github.com/menta2k/image-preprocessor/pkg/types"
)

// sizeFlags holds a target size; zero values fall back to the configured default
type sizeFlags struct {
	width  int
	height int
}

func (s *sizeFlags) register(cmd *cobra.Command, widthName, heightName string) {
	cmd.Flags().IntVar(&s.width, widthName, 0, "Target width in pixels (default from config)")
	cmd.Flags().IntVar(&s.height, heightName, 0, "Target height in pixels (default from config)")
}

func (a *App) targetSize(s sizeFlags) types.Dimensions {
	size := a.cfg.Image.DefaultSize
	if s.width > 0 {
		size.Width = s.width
	}
	if s.height > 0 {
		size.Height = s.height
	}
	return size
}

func (a *App) newResizeCmd() *cobra.Command {
	var (
		size    sizeFlags
		stretch bool
	)
	cmd := &cobra.Command{
		Use:   "resize <input> [output]",
		Short: "Resize a single image",
		Long: `Resize an image file or http(s) URL to the target size.

By default the image is fitted without upscaling and centered on a black
canvas. With --stretch it fills the canvas, ignoring its aspect ratio.

Examples:
  image-preprocessor resize photo.jpg
  image-preprocessor resize photo.jpg out/photo.png --width 1024 --height 768
  image-preprocessor resize https://example.com/cat.png cat.jpg --stretch`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := a.targetSize(size)
			var output string
			if len(args) == 2 {
				output = args[1]
			} else {
				output = utils.GenerateOutputFilename(args[0], a.cfg.Output.OutputDir, "", "_"+target.String(), "")
			}
			if err := utils.EnsureDir(filepath.Dir(output)); err != nil {
				return types.IOError("create output directory", filepath.Dir(output), err)
			}

			res := a.preprocessor().Resize(args[0], output, target, !stretch)
			if err := a.writeJSON(res); err != nil {
				return err
			}
			return res.Err()
		},
	}
	size.register(cmd, "width", "height")
	cmd.Flags().BoolVar(&stretch, "stretch", false, "Stretch to the target size instead of letterboxing")
	return cmd
}

func (a *App) newAnnotateCmd() *cobra.Command {
	var boxesJSON, boxesFile string
	cmd := &cobra.Command{
		Use:   "annotate <input> <output>",
		Short: "Draw bounding boxes on an image",
		Long: `Draw labeled bounding boxes on an image.

Boxes are a JSON list of {"x","y","width","height","label","color"} objects,
given inline with --boxes or read from --boxes-file.

Examples:
  image-preprocessor annotate in.jpg out.jpg --boxes '[{"x":10,"y":10,"width":50,"height":50,"label":"cat"}]'
  image-preprocessor annotate in.jpg out.jpg --boxes-file boxes.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			switch {
			case boxesJSON != "" && boxesFile != "":
				return fmt.Errorf("use either --boxes or --boxes-file")
			case boxesFile != "":
				var err error
				if data, err = os.ReadFile(boxesFile); err != nil {
					return types.IOError("read", boxesFile, err)
				}
			case boxesJSON != "":
				data = []byte(boxesJSON)
			default:
				return fmt.Errorf("one of --boxes or --boxes-file is required")
			}

			boxes, err := annotation.ParseBoxes(data)
			if err != nil {
				return err
			}

			res := a.preprocessor().Annotate(args[0], boxes, args[1])
			if err := a.writeJSON(res); err != nil {
				return err
			}
			return res.Err()
		},
	}
	cmd.Flags().StringVar(&boxesJSON, "boxes", "", "Boxes as a JSON list")
	cmd.Flags().StringVar(&boxesFile, "boxes-file", "", "File containing the boxes JSON list")
	return cmd
}

func (a *App) newBatchCmd() *cobra.Command {
	var (
		input, output   string
		annotationsFile string
		size            sizeFlags
		workers         int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Resize a directory of images and optionally annotate them",
		Long: `Resize every supported image directly inside the input directory into the
output directory under the same file name. Files listed in the annotations
file also get their boxes drawn. The annotations file is either a JSON object
mapping file names to box lists or a COCO dataset.

Failures of single files are reported in the result and never stop the run.

Examples:
  image-preprocessor batch --input ./raw_data --output ./processed
  image-preprocessor batch -i ./raw_data -o ./processed --annotations coco.json --workers 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = a.cfg.Output.InputDir
			}
			if output == "" {
				output = a.cfg.Output.OutputDir
			}

			var set types.AnnotationSet
			if annotationsFile != "" {
				var err error
				if set, err = annotation.LoadFile(annotationsFile); err != nil {
					return err
				}
			}
			if workers > 0 {
				a.cfg.Batch.MaxWorkers = workers
			}

			result, err := a.preprocessor().ProcessDataset(cmd.Context(), input, output, set, a.targetSize(size))
			if err != nil {
				return err
			}
			if err := a.writeJSON(result); err != nil {
				return err
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d of %d files failed", len(result.Failed), result.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Input directory (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().StringVarP(&annotationsFile, "annotations", "a", "", "Annotations JSON or COCO file")
	cmd.Flags().IntVar(&workers, "workers", 0, "Maximum concurrent files (default from config)")
	size.register(cmd, "width", "height")
	return cmd
}

func (a *App) newSampleCmd() *cobra.Command {
	var (
		count int
		size  sizeFlags
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate sample bounding boxes",
		Long: `Generate random bounding boxes for testing the annotation pipeline.
The output can be passed to annotate --boxes-file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.preprocessor()
			if seed != 0 {
				p.WithSampler(annotation.NewSampler(seed))
			}
			target := a.targetSize(size)
			boxes, err := p.SampleAnnotations(count, target.Width, target.Height)
			if err != nil {
				return err
			}
			return a.writeJSON(boxes)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 3, "Number of boxes")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for reproducible output (0 picks a random seed)")
	size.register(cmd, "width", "height")
	return cmd
}

func (a *App) newInspectCmd() *cobra.Command {
	var size sizeFlags
	cmd := &cobra.Command{
		Use:   "inspect [dir]",
		Short: "Report image sizes and formats of a dataset directory",
		Long: `Read the headers of every supported image in a directory and report
formats, the smallest and largest size, and the images smaller than the
target size. Letterboxing never upscales, so those stay small on the canvas.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Output.InputDir
			if len(args) == 1 {
				dir = args[0]
			}
			if !utils.DirExists(dir) {
				return types.IOError("inspect", dir, os.ErrNotExist)
			}
			an := analyzer.New(analyzer.Config{
				SupportedFormats: a.cfg.Image.SupportedFormats,
				MinSize:          a.targetSize(size),
			})
			report, err := an.InspectDir(cmd.Context(), dir)
			if err != nil {
				return err
			}
			return a.writeJSON(report)
		},
	}
	size.register(cmd, "width", "height")
	return cmd
}
