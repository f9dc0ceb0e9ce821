package nn

// Primary model classes. The multi-task model emits these alongside its
// segmentation tensor.
const (
	ClassVehicle  = 0
	ClassDrivable = 1
	ClassLane     = 2
)

var PrimaryClasses = []string{
	"Vehicle",
	"Drivable",
	"Lane",
}

// Secondary (COCO) detections are remapped into a reserved ID range before
// fusion, so that both model outputs can share one detection list and one
// color palette without class ID collisions.
const (
	RemapPerson       = 999
	RemapTrafficLight = 998
	RemapOther        = 997
)

const (
	COCOPerson       = 0
	COCOBicycle      = 1
	COCOCar          = 2
	COCOMotorcycle   = 3
	COCOBus          = 5
	COCOTruck        = 7
	COCOTrafficLight = 9
)

// COCO classes
var COCOClasses = []string{
	"person",
	"bicycle",
	"car",
	"motorcycle",
	"airplane",
	"bus",
	"train",
	"truck",
	"boat",
	"traffic light",
	"fire hydrant",
	"stop sign",
	"parking meter",
	"bench",
	"bird",
	"cat",
	"dog",
	"horse",
	"sheep",
	"cow",
	"elephant",
	"bear",
	"zebra",
	"giraffe",
	"backpack",
	"umbrella",
	"handbag",
	"tie",
	"suitcase",
	"frisbee",
	"skis",
	"snowboard",
	"sports ball",
	"kite",
	"baseball bat",
	"baseball glove",
	"skateboard",
	"surfboard",
	"tennis racket",
	"bottle",
	"wine glass",
	"cup",
	"fork",
	"knife",
	"spoon",
	"bowl",
	"banana",
	"apple",
	"sandwich",
	"orange",
	"broccoli",
	"carrot",
	"hot dog",
	"pizza",
	"donut",
	"cake",
	"chair",
	"couch",
	"potted plant",
	"bed",
	"dining table",
	"toilet",
	"tv",
	"laptop",
	"mouse",
	"remote",
	"keyboard",
	"cell phone",
	"microwave",
	"oven",
	"toaster",
	"sink",
	"refrigerator",
	"book",
	"clock",
	"vase",
	"scissors",
	"teddy bear",
	"hair drier",
	"toothbrush",
}

// RemapSecondaryClass maps a raw COCO class ID into the reserved range.
func RemapSecondaryClass(cocoClass int) int {
	switch cocoClass {
	case COCOPerson:
		return RemapPerson
	case COCOTrafficLight:
		return RemapTrafficLight
	default:
		return RemapOther
	}
}

// LabelForClass returns the display name of a class ID after remapping, i.e.
// a primary class ID or one of the reserved secondary IDs.
func LabelForClass(class int) string {
	switch class {
	case RemapPerson:
		return "person"
	case RemapTrafficLight:
		return "traffic light"
	case RemapOther:
		return "object"
	}
	if class >= 0 && class < len(PrimaryClasses) {
		return PrimaryClasses[class]
	}
	return "unknown"
}

// COCOLabel returns the name of a raw COCO class ID.
func COCOLabel(class int) string {
	if class >= 0 && class < len(COCOClasses) {
		return COCOClasses[class]
	}
	return "unknown"
}
