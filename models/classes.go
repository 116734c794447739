// Package models - Output class label sets for detection networks.
package models

// ClassStyle identifies the naming convention / dataset of a class set.
type ClassStyle string

const (
	// StyleCOCO is the 80 COCO classes plus a background entry at index 0,
	// as emitted by SSD and Faster-RCNN style graphs.
	StyleCOCO ClassStyle = "coco"
	// StyleYOLO is the 80 COCO classes with no background entry, as emitted
	// by Region (YOLO) style graphs.
	StyleYOLO ClassStyle = "yolo"
	// StyleVOC is the 20 Pascal VOC classes plus a background entry.
	StyleVOC ClassStyle = "voc"
)

// ClassSet is an ordered list of labels indexed by the class id a detector
// emits.
type ClassSet struct {
	Style ClassStyle
	Names []string
}

// Name returns the label for a class id, or the empty string when the id is
// outside the set. Out-of-range ids are not an error: some graphs emit ids
// for classes that were pruned from the label file.
func (s *ClassSet) Name(classID int) string {
	if s == nil || classID < 0 || classID >= len(s.Names) {
		return ""
	}
	return s.Names[classID]
}

// Index returns the class id for a label, or -1 when the label is unknown.
func (s *ClassSet) Index(name string) int {
	if s == nil {
		return -1
	}
	for i, n := range s.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// cocoNames are the 80 COCO labels in detector output order.
var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// vocNames are the 20 Pascal VOC labels in detector output order.
var vocNames = []string{
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa",
	"train", "tvmonitor",
}

// COCOClasses returns the COCO class set with a background entry at index 0.
func COCOClasses() *ClassSet {
	return &ClassSet{Style: StyleCOCO, Names: withBackground(cocoNames)}
}

// YOLOClasses returns the COCO class set without a background entry.
func YOLOClasses() *ClassSet {
	return &ClassSet{Style: StyleYOLO, Names: cocoNames}
}

// VOCClasses returns the Pascal VOC class set with a background entry at index 0.
func VOCClasses() *ClassSet {
	return &ClassSet{Style: StyleVOC, Names: withBackground(vocNames)}
}

func withBackground(names []string) []string {
	out := make([]string, 0, len(names)+1)
	out = append(out, "__background__")
	return append(out, names...)
}
