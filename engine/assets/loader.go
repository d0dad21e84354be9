package assets

type Loader interface {
	Load(path string) (*Resource, error)
	Unload(*Resource) error
}
