package annotation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

// COCODataset is a validated COCO style dataset description
type COCODataset struct {
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

// COCOImage describes one image of the dataset
type COCOImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// COCOAnnotation is one box, bbox being [x, y, width, height]
type COCOAnnotation struct {
	ID         int        `json:"id"`
	ImageID    int        `json:"image_id"`
	BBox       [4]float64 `json:"bbox"`
	CategoryID int        `json:"category_id"`
}

// COCOCategory names a class
type COCOCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type rawCOCO struct {
	Images      *[]rawCOCOImage      `json:"images"`
	Annotations *[]rawCOCOAnnotation `json:"annotations"`
	Categories  *[]rawCOCOCategory   `json:"categories"`
}

type rawCOCOImage struct {
	ID       *int    `json:"id"`
	FileName *string `json:"file_name"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

type rawCOCOAnnotation struct {
	ID         *int      `json:"id"`
	ImageID    *int      `json:"image_id"`
	BBox       []float64 `json:"bbox"`
	CategoryID *int      `json:"category_id"`
}

type rawCOCOCategory struct {
	ID   *int   `json:"id"`
	Name string `json:"name"`
}

// ParseCOCO decodes and validates a COCO dataset description. Every
// annotation must reference a known image and category.
func ParseCOCO(data []byte) (*COCODataset, error) {
	var raw rawCOCO
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.InvalidArgument("coco", "", fmt.Sprintf("invalid JSON: %v", err))
	}
	switch {
	case raw.Images == nil:
		return nil, types.InvalidArgument("coco.images", "", "is required")
	case raw.Annotations == nil:
		return nil, types.InvalidArgument("coco.annotations", "", "is required")
	case raw.Categories == nil:
		return nil, types.InvalidArgument("coco.categories", "", "is required")
	}

	ds := &COCODataset{}
	images := make(map[int]bool)
	for i, img := range *raw.Images {
		field := fmt.Sprintf("coco.images[%d]", i)
		if img.ID == nil {
			return nil, types.InvalidArgument(field+".id", "", "is required")
		}
		if img.FileName == nil || *img.FileName == "" {
			return nil, types.InvalidArgument(field+".file_name", "", "is required")
		}
		images[*img.ID] = true
		ds.Images = append(ds.Images, COCOImage{ID: *img.ID, FileName: *img.FileName, Width: img.Width, Height: img.Height})
	}

	categories := make(map[int]bool)
	for i, c := range *raw.Categories {
		if c.ID == nil {
			return nil, types.InvalidArgument(fmt.Sprintf("coco.categories[%d].id", i), "", "is required")
		}
		categories[*c.ID] = true
		ds.Categories = append(ds.Categories, COCOCategory{ID: *c.ID, Name: c.Name})
	}

	for i, a := range *raw.Annotations {
		field := fmt.Sprintf("coco.annotations[%d]", i)
		switch {
		case a.ID == nil:
			return nil, types.InvalidArgument(field+".id", "", "is required")
		case a.ImageID == nil:
			return nil, types.InvalidArgument(field+".image_id", "", "is required")
		case a.CategoryID == nil:
			return nil, types.InvalidArgument(field+".category_id", "", "is required")
		case a.BBox == nil:
			return nil, types.InvalidArgument(field+".bbox", "", "is required")
		case len(a.BBox) != 4:
			return nil, types.InvalidArgument(field+".bbox", strconv.Itoa(len(a.BBox)), "must have exactly 4 numbers")
		case !images[*a.ImageID]:
			return nil, types.InvalidArgument(field+".image_id", strconv.Itoa(*a.ImageID), "unknown image")
		case !categories[*a.CategoryID]:
			return nil, types.InvalidArgument(field+".category_id", strconv.Itoa(*a.CategoryID), "unknown category")
		}
		for j, v := range a.BBox {
			if v < 0 {
				return nil, types.InvalidArgument(fmt.Sprintf("%s.bbox[%d]", field, j), strconv.FormatFloat(v, 'f', -1, 64), "must not be negative")
			}
		}
		ds.Annotations = append(ds.Annotations, COCOAnnotation{
			ID:         *a.ID,
			ImageID:    *a.ImageID,
			BBox:       [4]float64(a.BBox),
			CategoryID: *a.CategoryID,
		})
	}

	return ds, nil
}

// AnnotationSet converts the dataset into per-file boxes. Labels are
// category names and colors cycle through Colors in category id order.
// Images without annotations are left out.
func (d *COCODataset) AnnotationSet() types.AnnotationSet {
	files := make(map[int]string, len(d.Images))
	for _, img := range d.Images {
		files[img.ID] = img.FileName
	}

	ids := make([]int, 0, len(d.Categories))
	names := make(map[int]string, len(d.Categories))
	for _, c := range d.Categories {
		ids = append(ids, c.ID)
		names[c.ID] = c.Name
	}
	sort.Ints(ids)
	colors := make(map[int]string, len(ids))
	for i, id := range ids {
		colors[id] = Colors[i%len(Colors)]
	}

	set := make(types.AnnotationSet)
	for _, a := range d.Annotations {
		name, ok := files[a.ImageID]
		if !ok {
			continue
		}
		set[name] = append(set[name], types.BoundingBox{
			X:      int(math.Round(a.BBox[0])),
			Y:      int(math.Round(a.BBox[1])),
			Width:  int(math.Round(a.BBox[2])),
			Height: int(math.Round(a.BBox[3])),
			Label:  names[a.CategoryID],
			Color:  colors[a.CategoryID],
		})
	}
	return set
}
