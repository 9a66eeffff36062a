package types

// Family is the task category a model implementation belongs to. It decides
// the cache subdirectory, the fetch filters and the shape of predictions.
type Family string

const (
	FamilyImageClassification Family = "image-classification"
	FamilyCLIP                Family = "clip"
	FamilyFacialRecognition   Family = "facial-recognition"
)

// Families lists every known family in a stable order.
func Families() []Family {
	return []Family{FamilyImageClassification, FamilyCLIP, FamilyFacialRecognition}
}

// Valid reports whether f is one of the known families.
func (f Family) Valid() bool {
	for _, k := range Families() {
		if f == k {
			return true
		}
	}
	return false
}

// Model represents a model whose artifacts are present in the cache.
type Model struct {
	// Registry identity of the model.
	// example: microsoft/resnet-50
	Name string `json:"name" example:"microsoft/resnet-50"`
	// Model family.
	// example: image-classification
	Family Family `json:"family" example:"image-classification"`
	// Absolute cache directory holding the artifacts.
	// example: /home/user/.cache/inferd/image-classification/microsoft/resnet-50
	Path string `json:"path" example:"/home/user/.cache/inferd/image-classification/microsoft/resnet-50"`
	// Total size of cached files in bytes.
	// example: 102400000
	SizeBytes int64 `json:"size_bytes" example:"102400000"`
}
