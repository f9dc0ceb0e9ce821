package traffic

import (
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/roadsight/roadsight/pkg/seg"
)

// RoadOccupancyParams tune the on-road heuristics. The zero value is not
// usable; call DefaultRoadOccupancyParams.
type RoadOccupancyParams struct {
	// With a drivable mask: the foot point must be inside the dilated mask
	// and below LowerHalf * height.
	LowerHalf float32

	// Without a mask: the foot point must be below FallbackVertical * height
	// and horizontally between FallbackLeft and FallbackRight (fractions of
	// width).
	FallbackVertical float32
	FallbackLeft     float32
	FallbackRight    float32

	// Dilation kernel is max(MinKernelSize, KernelFrac * min(width, height)).
	// Dilating compensates for the drivable mask excluding the pedestrian's
	// own silhouette.
	MinKernelSize int
	KernelFrac    float32
}

func DefaultRoadOccupancyParams() RoadOccupancyParams {
	return RoadOccupancyParams{
		LowerHalf:        0.5,
		FallbackVertical: 0.4,
		FallbackLeft:     0.2,
		FallbackRight:    0.8,
		MinKernelSize:    30,
		KernelFrac:       0.05,
	}
}

// RoadOccupancy decides whether pedestrian boxes stand on the road. It holds
// the dilated drivable mask so that multiple pedestrians in one frame share
// one dilation pass.
type RoadOccupancy struct {
	params      RoadOccupancyParams
	imageWidth  int
	imageHeight int
	dilated     *seg.Mask // nil when no usable drivable mask
}

// NewRoadOccupancy prepares the per-frame occupancy state. drivable may be
// nil or empty, in which case only the positional fallback applies.
func NewRoadOccupancy(drivable *seg.Mask, imageWidth, imageHeight int, params RoadOccupancyParams) *RoadOccupancy {
	r := &RoadOccupancy{
		params:      params,
		imageWidth:  imageWidth,
		imageHeight: imageHeight,
	}
	if drivable != nil && drivable.CountNonZero() > 0 {
		mask := drivable
		if mask.Width != imageWidth || mask.Height != imageHeight {
			mask = mask.ResizeNearest(imageWidth, imageHeight)
		}
		kernel := max(params.MinKernelSize, int(params.KernelFrac*float32(min(imageWidth, imageHeight))))
		r.dilated = mask.DilateEllipse(kernel)
	}
	return r
}

// IsOnRoad reports whether a pedestrian box stands on the drivable area.
// Never errors: absent or unusable masks fall back to positional rules.
// A foot point outside the frame (eg a box touching the bottom edge puts it
// at y == height) also uses the positional rules, since the mask has no
// pixel there.
func (r *RoadOccupancy) IsOnRoad(box nn.Rect) bool {
	foot := box.FootPoint()

	if r.dilated != nil &&
		foot.X >= 0 && foot.X < r.imageWidth && foot.Y >= 0 && foot.Y < r.imageHeight {
		inLowerHalf := float32(foot.Y) > r.params.LowerHalf*float32(r.imageHeight)
		return r.dilated.IsSet(foot.X, foot.Y) && inLowerHalf
	}

	inVertical := float32(foot.Y) > r.params.FallbackVertical*float32(r.imageHeight)
	inHorizontal := float32(foot.X) > r.params.FallbackLeft*float32(r.imageWidth) &&
		float32(foot.X) < r.params.FallbackRight*float32(r.imageWidth)
	return inVertical && inHorizontal
}
