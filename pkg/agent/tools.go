package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/invopop/jsonschema"

	"github.com/menta2k/image-preprocessor/internal/logging"
	"github.com/menta2k/image-preprocessor/pkg/annotation"
	"github.com/menta2k/image-preprocessor/pkg/client"
	"github.com/menta2k/image-preprocessor/pkg/types"
)

// Tool names exposed to the model
const (
	ToolResize          = "resize_single_image"
	ToolAnnotate        = "add_bounding_boxes_to_image"
	ToolProcessDataset  = "process_image_dataset"
	ToolSampleBoxes     = "create_sample_annotations"
	defaultTargetLength = 640
	defaultSampleCount  = 3
)

// Operations is what the tools call into
type Operations interface {
	Resize(source, dest string, size types.Dimensions, maintainAspect bool) types.Result[types.ResizeResult]
	Annotate(source string, boxes []types.BoundingBox, dest string) types.Result[types.AnnotateResult]
	ProcessDataset(ctx context.Context, inputDir, outputDir string, annotations types.AnnotationSet, size types.Dimensions) (types.BatchResult, error)
	SampleAnnotations(count, imageWidth, imageHeight int) ([]types.BoundingBox, error)
}

// ResizeArgs are the arguments of resize_single_image
type ResizeArgs struct {
	ImagePath      string `json:"image_path" jsonschema:"required,description=Path or http(s) URL of the input image"`
	OutputPath     string `json:"output_path" jsonschema:"required,description=Where to write the resized image"`
	Width          *int   `json:"width,omitempty" jsonschema:"minimum=10,default=640,description=Target width in pixels"`
	Height         *int   `json:"height,omitempty" jsonschema:"minimum=10,default=640,description=Target height in pixels"`
	MaintainAspect *bool  `json:"maintain_aspect,omitempty" jsonschema:"default=true,description=Letterbox on black instead of stretching"`
}

// AnnotateArgs are the arguments of add_bounding_boxes_to_image
type AnnotateArgs struct {
	ImagePath  string   `json:"image_path" jsonschema:"required,description=Path or http(s) URL of the input image"`
	OutputPath string   `json:"output_path" jsonschema:"required,description=Where to write the annotated image"`
	BoxesJSON  jsonText `json:"boxes_json" jsonschema:"required,description=JSON list of boxes with x y width height and optional label and color"`
}

// ProcessDatasetArgs are the arguments of process_image_dataset
type ProcessDatasetArgs struct {
	InputDirectory  string   `json:"input_directory" jsonschema:"required,description=Directory containing the input images"`
	OutputDirectory string   `json:"output_directory" jsonschema:"required,description=Directory to write processed images to"`
	AnnotationsJSON jsonText `json:"annotations_json,omitempty" jsonschema:"description=Optional JSON object mapping file names to box lists or a COCO dataset"`
	TargetWidth     *int     `json:"target_width,omitempty" jsonschema:"minimum=10,default=640,description=Target width in pixels"`
	TargetHeight    *int     `json:"target_height,omitempty" jsonschema:"minimum=10,default=640,description=Target height in pixels"`
}

// SampleArgs are the arguments of create_sample_annotations
type SampleArgs struct {
	NumBoxes    *int `json:"num_boxes,omitempty" jsonschema:"minimum=0,default=3,description=Number of boxes to generate"`
	ImageWidth  *int `json:"image_width,omitempty" jsonschema:"minimum=201,default=640,description=Image width in pixels"`
	ImageHeight *int `json:"image_height,omitempty" jsonschema:"minimum=201,default=640,description=Image height in pixels"`
}

// jsonText holds a JSON document the model may send either as a string or inline
type jsonText []byte

func (j *jsonText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*j = jsonText(sanitizeModelJSON(s))
		return nil
	}
	*j = append((*j)[:0], data...)
	return nil
}

// JSONSchema describes jsonText as a string
func (jsonText) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

func (j jsonText) empty() bool {
	t := bytes.TrimSpace(j)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// sanitizeModelJSON removes code fences and trailing commas models like to add
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	return strings.TrimSpace(trailingComma.ReplaceAllString(raw, "$1"))
}

type handler func(ctx context.Context, args json.RawMessage) (any, error)

// Toolset maps tool names to operations
type Toolset struct {
	ops         Operations
	logger      *bolt.Logger
	definitions []client.ToolDefinition
	handlers    map[string]handler
}

// NewToolset builds the four preprocessing tools over ops
func NewToolset(ops Operations, logger *bolt.Logger) (*Toolset, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	t := &Toolset{ops: ops, logger: logger, handlers: make(map[string]handler)}

	specs := []struct {
		name        string
		description string
		args        any
		fn          handler
	}{
		{ToolResize, "Resize a single image to the given dimensions, letterboxing by default", &ResizeArgs{}, t.resize},
		{ToolAnnotate, "Draw labeled bounding boxes on an image", &AnnotateArgs{}, t.annotate},
		{ToolProcessDataset, "Resize every image of a directory and optionally draw bounding boxes on listed files", &ProcessDatasetArgs{}, t.processDataset},
		{ToolSampleBoxes, "Create sample bounding box annotations for testing", &SampleArgs{}, t.sample},
	}
	for _, s := range specs {
		params, err := schemaFor(s.args)
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", s.name, err)
		}
		t.definitions = append(t.definitions, client.ToolDefinition{
			Name:        s.name,
			Description: s.description,
			Parameters:  params,
		})
		t.handlers[s.name] = s.fn
	}
	return t, nil
}

// schemaFor reflects an inline JSON schema object for v
func schemaFor(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		ExpandedStruct:             true,
	}
	b, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil {
		return nil, err
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}

// Definitions lists the tools in a stable order
func (t *Toolset) Definitions() []client.ToolDefinition {
	return append([]client.ToolDefinition(nil), t.definitions...)
}

// Call runs a tool and returns its indented JSON output. Errors are only
// returned for unknown tools or malformed arguments; operation failures are
// part of the output.
func (t *Toolset) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	h, ok := t.handlers[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown tool %q", types.ErrInvalidArgument, name)
	}
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}

	out, err := h(ctx, args)
	if err != nil {
		logging.With(t.logger.Warn(), logging.ToolName(name), logging.ErrorField(err)).Msg("tool call rejected")
		return "", err
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", name, err)
	}
	logging.With(t.logger.Debug(), logging.ToolName(name)).Msg("tool call finished")
	return string(data), nil
}

// ErrorOutput renders err the way failed operations are reported to the model
func ErrorOutput(err error) string {
	data, _ := json.MarshalIndent(types.Failure[struct{}](err), "", "  ")
	return string(data)
}

func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return types.InvalidArgument("arguments", "", err.Error())
	}
	return nil
}

func orDefault[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func requireString(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return types.InvalidArgument(field, "", "is required")
	}
	return nil
}

func (t *Toolset) resize(_ context.Context, raw json.RawMessage) (any, error) {
	var args ResizeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := requireString("image_path", args.ImagePath); err != nil {
		return nil, err
	}
	if err := requireString("output_path", args.OutputPath); err != nil {
		return nil, err
	}

	size := types.Dimensions{
		Width:  orDefault(args.Width, defaultTargetLength),
		Height: orDefault(args.Height, defaultTargetLength),
	}
	return t.ops.Resize(args.ImagePath, args.OutputPath, size, orDefault(args.MaintainAspect, true)), nil
}

func (t *Toolset) annotate(_ context.Context, raw json.RawMessage) (any, error) {
	var args AnnotateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := requireString("image_path", args.ImagePath); err != nil {
		return nil, err
	}
	if err := requireString("output_path", args.OutputPath); err != nil {
		return nil, err
	}
	if args.BoxesJSON.empty() {
		return nil, types.InvalidArgument("boxes_json", "", "is required")
	}

	boxes, err := annotation.ParseBoxes(args.BoxesJSON)
	if err != nil {
		return types.Failure[types.AnnotateResult](err), nil
	}
	return t.ops.Annotate(args.ImagePath, boxes, args.OutputPath), nil
}

func (t *Toolset) processDataset(ctx context.Context, raw json.RawMessage) (any, error) {
	var args ProcessDatasetArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := requireString("input_directory", args.InputDirectory); err != nil {
		return nil, err
	}
	if err := requireString("output_directory", args.OutputDirectory); err != nil {
		return nil, err
	}

	var set types.AnnotationSet
	if !args.AnnotationsJSON.empty() {
		var err error
		if set, err = annotation.Parse(args.AnnotationsJSON); err != nil {
			return types.Failure[types.BatchResult](err), nil
		}
	}

	size := types.Dimensions{
		Width:  orDefault(args.TargetWidth, defaultTargetLength),
		Height: orDefault(args.TargetHeight, defaultTargetLength),
	}
	result, err := t.ops.ProcessDataset(ctx, args.InputDirectory, args.OutputDirectory, set, size)
	if err != nil {
		return types.Failure[types.BatchResult](err), nil
	}
	return result, nil
}

func (t *Toolset) sample(_ context.Context, raw json.RawMessage) (any, error) {
	var args SampleArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	boxes, err := t.ops.SampleAnnotations(
		orDefault(args.NumBoxes, defaultSampleCount),
		orDefault(args.ImageWidth, defaultTargetLength),
		orDefault(args.ImageHeight, defaultTargetLength),
	)
	if err != nil {
		return types.Failure[[]types.BoundingBox](err), nil
	}
	return boxes, nil
}
