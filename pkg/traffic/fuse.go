package traffic

import (
	"fmt"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/roadsight/roadsight/pkg/seg"
)

type Color struct {
	R uint8
	G uint8
	B uint8
}

// 20 distinct colors, keyed by class ID modulo 20
var palette = []Color{
	{0, 0, 255}, {0, 255, 0}, {255, 0, 0}, {0, 255, 255},
	{255, 0, 255}, {255, 255, 0}, {0, 0, 128}, {0, 128, 0},
	{128, 0, 0}, {0, 128, 128}, {128, 0, 128}, {128, 128, 0},
	{192, 192, 192}, {0, 128, 255}, {128, 0, 255}, {0, 255, 128},
	{128, 255, 0}, {255, 0, 128}, {255, 128, 0}, {0, 192, 255},
}

func PaletteColor(classID int) Color {
	return palette[classID%len(palette)]
}

var (
	colorPersonOnRoad = Color{255, 0, 0}
	colorPerson       = Color{0, 255, 0}
	colorLightRed     = Color{255, 0, 0}
	colorLightYellow  = Color{255, 255, 0}
	colorLightGreen   = Color{0, 255, 0}
	colorLightUnknown = Color{128, 128, 128}
	colorUnknownClass = Color{255, 0, 255}
	colorDrivableZone = Color{255, 255, 0}
)

func lightDisplayColor(c LightColor) Color {
	switch c {
	case LightRed:
		return colorLightRed
	case LightYellow:
		return colorLightYellow
	case LightGreen:
		return colorLightGreen
	}
	return colorLightUnknown
}

// RenderOptions control which annotation elements get emitted.
type RenderOptions struct {
	ShowBoxes      bool
	ShowLabels     bool
	ShowConfidence bool
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		ShowBoxes:      true,
		ShowLabels:     true,
		ShowConfidence: true,
	}
}

// BoxPrimitive is one finalized box for the compositor. Label is already
// fully formatted (with confidence, when enabled).
type BoxPrimitive struct {
	Box      nn.Rect
	Label    string
	Color    Color
	ShowBox  bool
	HasLabel bool
}

// MaskPrimitive is one finalized segmentation overlay for the compositor,
// at frame resolution.
type MaskPrimitive struct {
	Mask  *seg.Mask
	Color Color

	// Caption is drawn in the mask color at the mask centroid, eg the
	// drivable zone's "Drivable Area" tag. Empty for plain overlays.
	Caption string

	// Tint blends the base toward the color instead of adding to it
	Tint bool
}

// TrafficLight is one classified light observation for the info banner and
// the frame record.
type TrafficLight struct {
	Box        nn.Rect
	Color      LightColor
	Confidence float32
}

// Annotations is one frame's worth of drawable primitives plus the scene
// facts derived while producing them. The compositor consumes Masks and
// Boxes in order; Warnings go in the top banner and InfoItems in the bottom
// banner.
type Annotations struct {
	Masks     []MaskPrimitive
	Boxes     []BoxPrimitive
	Warnings  []string
	InfoItems []string

	// All detections in the unified class space, for label files and history
	Detections []nn.ObjectDetection

	TrafficLights     []TrafficLight
	PedestriansOnRoad int
}

// Fuser combines the outputs of the multi-task detector and the secondary
// general detector into one frame annotation. One Fuser serves many frames;
// it is not safe for concurrent use.
type Fuser struct {
	log             logs.Log
	classNames      []string // primary model class names, indexed by class ID
	occupancyParams RoadOccupancyParams
	options         RenderOptions
}

func NewFuser(log logs.Log, classNames []string, options RenderOptions) *Fuser {
	if len(classNames) == 0 {
		classNames = nn.PrimaryClasses
	}
	return &Fuser{
		log:             log,
		classNames:      classNames,
		occupancyParams: DefaultRoadOccupancyParams(),
		options:         options,
	}
}

func (f *Fuser) primaryClassName(classID int) string {
	if classID >= 0 && classID < len(f.classNames) {
		return f.classNames[classID]
	}
	return fmt.Sprintf("Unknown-%v", classID)
}

// Fuse produces one frame's annotations from both detector outputs. tensor
// may be nil (no segmentation this frame). Heuristic failures degrade to
// "unknown"/absent rather than erroring, so Fuse itself never fails.
func (f *Fuser) Fuse(img *cimg.Image, primary []nn.ObjectDetection, tensor *nn.SegmentationTensor, secondary []nn.ObjectDetection, params *nn.DetectionParams) *Annotations {
	ann := &Annotations{}

	// Segmentation overlays, and the drivable raster for occupancy checks
	var drivable *seg.Mask
	if tensor != nil {
		maps, err := seg.Normalize(tensor)
		if err != nil {
			// Not fatal. The frame just renders without segmentation.
			f.log.Warnf("Skipping segmentation overlay: %v", err)
		} else {
			for i := range maps {
				maps[i] = maps[i].ResizeBilinear(img.Width, img.Height)
			}
			for classID, m := range maps {
				mask := m.Threshold(params.MaskThreshold)
				if mask.CountNonZero() == 0 {
					continue
				}
				ann.Masks = append(ann.Masks, MaskPrimitive{
					Mask:  mask,
					Color: PaletteColor(classID),
				})
			}
			drivable = seg.DrivableRaster(maps)
		}
	}

	// Unioned drivable zone on top of the per-channel masks, with its caption
	if drivable != nil && drivable.CountNonZero() > 0 {
		ann.Masks = append(ann.Masks, MaskPrimitive{
			Mask:    drivable,
			Color:   colorDrivableZone,
			Caption: "Drivable Area",
			Tint:    true,
		})
	}

	// Primary boxes
	for _, det := range primary {
		ann.Boxes = append(ann.Boxes, f.makeBox(det.Box, PaletteColor(det.Class), f.primaryClassName(det.Class), det.Confidence))
		ann.Detections = append(ann.Detections, det)
	}

	// Secondary boxes: pedestrians and traffic lights get their own
	// semantics, everything else is drawn as-is
	occupancy := NewRoadOccupancy(drivable, img.Width, img.Height, f.occupancyParams)
	for _, det := range secondary {
		unified := det
		unified.Class = nn.RemapSecondaryClass(det.Class)

		switch det.Class {
		case nn.COCOPerson:
			if occupancy.IsOnRoad(det.Box) {
				ann.PedestriansOnRoad++
				ann.Warnings = append(ann.Warnings, "Warning: pedestrian on the road!")
				ann.Boxes = append(ann.Boxes, f.makeBox(det.Box, colorPersonOnRoad, "Person-OnRoad", det.Confidence))
			} else {
				ann.Boxes = append(ann.Boxes, f.makeBox(det.Box, colorPerson, "Person", det.Confidence))
			}
		case nn.COCOTrafficLight:
			state := ClassifyLightColor(img, det.Box)
			ann.TrafficLights = append(ann.TrafficLights, TrafficLight{
				Box:        det.Box,
				Color:      state,
				Confidence: det.Confidence,
			})
			if state == LightRed {
				ann.Warnings = append(ann.Warnings, "Notice: red light detected")
			}
			label := "Light-" + capitalize(string(state))
			ann.Boxes = append(ann.Boxes, f.makeBox(det.Box, lightDisplayColor(state), label, det.Confidence))
		default:
			label := fmt.Sprintf("Unknown-%v", det.Class)
			ann.Boxes = append(ann.Boxes, f.makeBox(det.Box, colorUnknownClass, label, det.Confidence))
		}
		ann.Detections = append(ann.Detections, unified)
	}

	if len(ann.TrafficLights) != 0 {
		states := make([]string, 0, len(ann.TrafficLights))
		for _, tl := range ann.TrafficLights {
			states = append(states, string(tl.Color))
		}
		ann.InfoItems = append(ann.InfoItems, "Traffic lights: "+strings.Join(states, ", "))
	}
	if ann.PedestriansOnRoad != 0 {
		ann.InfoItems = append(ann.InfoItems, fmt.Sprintf("Pedestrians on road: %v", ann.PedestriansOnRoad))
	}

	return ann
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (f *Fuser) makeBox(box nn.Rect, color Color, name string, confidence float32) BoxPrimitive {
	label := ""
	if f.options.ShowLabels {
		label = name
		if f.options.ShowConfidence {
			label += fmt.Sprintf(" %.2f", confidence)
		}
	}
	return BoxPrimitive{
		Box:      box,
		Label:    label,
		Color:    color,
		ShowBox:  f.options.ShowBoxes,
		HasLabel: label != "",
	}
}
