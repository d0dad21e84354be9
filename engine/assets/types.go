package assets

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	// ResourceTypeShader is a compiled SPIR-V blob.
	ResourceTypeShader
	ResourceTypeImage
	ResourceTypeModel
)

// Resource is one loaded asset. Data holds the loader-specific payload:
// []byte for shaders, *ImageData for images, *ModelData for models.
type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     interface{}
}

type ImageData struct {
	ChannelCount uint8
	Width        uint32
	Height       uint32
	Pixels       []uint8
}

// ModelData is a position-only mesh with uint32 indices.
type ModelData struct {
	Positions []float32
	Indices   []uint32
}
