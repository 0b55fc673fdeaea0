package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

// rawBox mirrors types.BoundingBox with pointers so missing fields can be told apart from zero
type rawBox struct {
	X      *int   `json:"x"`
	Y      *int   `json:"y"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
	Label  string `json:"label,omitempty"`
	Color  string `json:"color,omitempty"`
}

func (r rawBox) toBox(field string) (types.BoundingBox, error) {
	required := []struct {
		name string
		v    *int
	}{{"x", r.X}, {"y", r.Y}, {"width", r.Width}, {"height", r.Height}}

	for _, f := range required {
		if f.v == nil {
			return types.BoundingBox{}, types.InvalidArgument(field+"."+f.name, "", "is required")
		}
		if *f.v < 0 {
			return types.BoundingBox{}, types.InvalidArgument(field+"."+f.name, fmt.Sprint(*f.v), "must not be negative")
		}
	}

	return types.BoundingBox{
		X:      *r.X,
		Y:      *r.Y,
		Width:  *r.Width,
		Height: *r.Height,
		Label:  r.Label,
		Color:  r.Color,
	}, nil
}

// ParseBoxes decodes a JSON list of boxes. x, y, width and height are required.
func ParseBoxes(data []byte) ([]types.BoundingBox, error) {
	var raw []rawBox
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.InvalidArgument("boxes", "", fmt.Sprintf("invalid JSON: %v", err))
	}
	return convertBoxes("boxes", raw)
}

// ParseAnnotationSet decodes a JSON object mapping filenames to box lists
func ParseAnnotationSet(data []byte) (types.AnnotationSet, error) {
	var raw map[string][]rawBox
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.InvalidArgument("annotations", "", fmt.Sprintf("invalid JSON: %v", err))
	}

	set := make(types.AnnotationSet, len(raw))
	for name, boxes := range raw {
		converted, err := convertBoxes(fmt.Sprintf("annotations[%q]", name), boxes)
		if err != nil {
			return nil, err
		}
		set[name] = converted
	}
	return set, nil
}

func convertBoxes(field string, raw []rawBox) ([]types.BoundingBox, error) {
	boxes := make([]types.BoundingBox, 0, len(raw))
	for i, r := range raw {
		box, err := r.toBox(fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

// LoadFile reads an annotation file, accepting either a COCO dataset or a
// plain filename to boxes mapping.
func LoadFile(path string) (types.AnnotationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.IOError("read", path, err)
	}
	return Parse(data)
}

// Parse decodes annotation data in either supported layout
func Parse(data []byte) (types.AnnotationSet, error) {
	if isCOCO(data) {
		ds, err := ParseCOCO(data)
		if err != nil {
			return nil, err
		}
		return ds.AnnotationSet(), nil
	}
	return ParseAnnotationSet(data)
}

func isCOCO(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return false
	}
	for _, key := range []string{"images", "annotations", "categories"} {
		if _, ok := top[key]; !ok {
			return false
		}
	}

	// box lists never carry file_name, COCO images always do
	var images []map[string]json.RawMessage
	if err := json.Unmarshal(top["images"], &images); err != nil {
		return false
	}
	for _, img := range images {
		if _, ok := img["file_name"]; !ok {
			return false
		}
	}
	var categories []json.RawMessage
	return json.Unmarshal(top["categories"], &categories) == nil
}
