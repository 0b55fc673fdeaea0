// Package batch runs the resize and annotate pipeline over a directory.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/image-preprocessor/internal/logging"
	"github.com/menta2k/image-preprocessor/internal/utils"
	"github.com/menta2k/image-preprocessor/pkg/types"
)

const instrumentationName = "github.com/menta2k/image-preprocessor/pkg/batch"

// Transformer is the single image capability the runner drives
type Transformer interface {
	Resize(source, dest string, size types.Dimensions, maintainAspect bool) types.Result[types.ResizeResult]
	Annotate(source string, boxes []types.BoundingBox, dest string) types.Result[types.AnnotateResult]
}

// Options configures a batch run
type Options struct {
	TargetSize     types.Dimensions
	MaintainAspect bool
	// Extensions lists eligible file extensions, matched case-insensitively.
	Extensions []string
	// MaxWorkers bounds how many files are processed at once.
	MaxWorkers int
	// BatchSize is how many files are dispatched before waiting for the pool to drain.
	BatchSize int
}

// DefaultOptions returns the stock batch settings
func DefaultOptions() Options {
	return Options{
		TargetSize:     types.Dimensions{Width: 640, Height: 640},
		MaintainAspect: true,
		Extensions:     []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".webp"},
		MaxWorkers:     4,
		BatchSize:      100,
	}
}

// Runner processes every eligible file of a directory. A file that fails
// never stops the others.
type Runner struct {
	transformer Transformer
	opts        Options
	logger      *bolt.Logger
	tracer      trace.Tracer
	files       metric.Int64Counter
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(t Transformer, opts Options, logger *bolt.Logger) *Runner {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}

	meter := otel.GetMeterProvider().Meter(instrumentationName)
	files, err := meter.Int64Counter(
		"preprocess.files",
		metric.WithDescription("Number of files handled by batch runs"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("batch metrics disabled")
	}

	return &Runner{
		transformer: t,
		opts:        opts,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
		files:       files,
	}
}

// Options returns the runner settings
func (r *Runner) Options() Options {
	return r.opts
}

// sink collects file outcomes from concurrent workers
type sink struct {
	mu     sync.Mutex
	result types.BatchResult
}

func (s *sink) processed(file, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Processed = append(s.result.Processed, types.ProcessedFile{File: file, Output: output})
}

func (s *sink) failed(file string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Failed = append(s.result.Failed, types.FailedFile{File: file, Error: err.Error()})
}

// Run resizes every eligible file of inputDir into outputDir and annotates the
// ones listed in annotations. The returned error is reserved for directory
// level failures; per file failures are reported in the result.
func (r *Runner) Run(ctx context.Context, inputDir, outputDir string, annotations types.AnnotationSet) (types.BatchResult, error) {
	runID := uuid.NewString()
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("batch.run_id", runID),
		attribute.String("batch.input_dir", inputDir),
		attribute.String("batch.output_dir", outputDir),
	))
	defer span.End()

	if err := utils.EnsureDir(outputDir); err != nil {
		err = types.IOError("create output directory", outputDir, err)
		span.SetStatus(codes.Error, err.Error())
		return types.NewBatchResult(), err
	}

	files, err := utils.ListImageFiles(inputDir, r.opts.Extensions)
	if err != nil {
		err = types.IOError("list input directory", inputDir, err)
		span.SetStatus(codes.Error, err.Error())
		return types.NewBatchResult(), err
	}

	out := &sink{result: types.NewBatchResult()}
	out.result.Total = len(files)

	r.logger.Info().
		Str("run_id", runID).
		Str("input_dir", inputDir).
		Str("output_dir", outputDir).
		Int("files", len(files)).
		Int("workers", r.opts.MaxWorkers).
		Msg("batch started")

	for offset := 0; offset < len(files); offset += r.opts.BatchSize {
		end := min(offset+r.opts.BatchSize, len(files))

		var g errgroup.Group
		g.SetLimit(r.opts.MaxWorkers)
		for _, name := range files[offset:end] {
			if err := ctx.Err(); err != nil {
				r.fail(ctx, out, name, err)
				continue
			}
			boxes, annotate := annotations[name]
			g.Go(func() error {
				r.processFile(ctx, out, inputDir, outputDir, name, boxes, annotate)
				return nil
			})
		}
		_ = g.Wait()

		r.logger.Debug().
			Str("run_id", runID).
			Int("done", end).
			Int("total", len(files)).
			Msg("batch chunk finished")
	}

	result := out.result
	sort.Slice(result.Processed, func(i, j int) bool { return result.Processed[i].File < result.Processed[j].File })
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].File < result.Failed[j].File })

	span.SetAttributes(
		attribute.Int("batch.total", result.Total),
		attribute.Int("batch.processed", len(result.Processed)),
		attribute.Int("batch.failed", len(result.Failed)),
	)
	logging.With(r.logger.Info(), logging.RunID(runID), logging.Duration(time.Since(start))).
		Int("total", result.Total).
		Int("processed", len(result.Processed)).
		Int("failed", len(result.Failed)).
		Msg("batch finished")

	return result, nil
}

// processFile resizes name into an intermediate file, then annotates or
// renames it to its final path. The intermediate file never survives.
func (r *Runner) processFile(ctx context.Context, out *sink, inputDir, outputDir, name string, boxes []types.BoundingBox, annotate bool) {
	ctx, span := r.tracer.Start(ctx, "batch.file", trace.WithAttributes(
		attribute.String("batch.file", name),
		attribute.Bool("batch.annotate", annotate),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		r.fail(ctx, out, name, err)
		return
	}

	source := filepath.Join(inputDir, name)
	intermediate := filepath.Join(outputDir, utils.IntermediateName(name))
	final := filepath.Join(outputDir, name)

	resized := r.transformer.Resize(source, intermediate, r.opts.TargetSize, r.opts.MaintainAspect)
	if !resized.OK() {
		_ = os.Remove(intermediate)
		r.fail(ctx, out, name, resized.Err())
		return
	}

	if annotate {
		annotated := r.transformer.Annotate(intermediate, boxes, final)
		if err := os.Remove(intermediate); err != nil && !os.IsNotExist(err) {
			r.logger.Warn().Str("file", intermediate).Err(err).Msg("failed to remove intermediate file")
		}
		if !annotated.OK() {
			r.fail(ctx, out, name, annotated.Err())
			return
		}
	} else if err := os.Rename(intermediate, final); err != nil {
		_ = os.Remove(intermediate)
		r.fail(ctx, out, name, types.IOError("rename", intermediate, err))
		return
	}

	out.processed(name, final)
	r.count(ctx, "processed")
	r.logger.Debug().Str("file", name).Str("output", final).Bool("annotated", annotate).Msg("file processed")
}

func (r *Runner) fail(ctx context.Context, out *sink, name string, err error) {
	out.failed(name, err)
	r.count(ctx, "failed")

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	logging.With(r.logger.Warn(), logging.File(name), logging.ErrorField(err)).Msg("file failed")
}

func (r *Runner) count(ctx context.Context, status string) {
	if r.files == nil {
		return
	}
	r.files.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
