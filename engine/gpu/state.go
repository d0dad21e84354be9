package gpu

// Tracked pairs a backend resource with its CPU-side usage-state tag. The
// tag is updated the moment the barrier is recorded, not when it executes;
// that is safe because the recorded barrier orders the GPU work either side
// of it.
type Tracked struct {
	resource Resource
	state    ResourceState
}

func NewTracked(resource Resource, initial ResourceState) *Tracked {
	return &Tracked{
		resource: resource,
		state:    initial,
	}
}

func (t *Tracked) Resource() Resource {
	return t.resource
}

func (t *Tracked) State() ResourceState {
	return t.state
}

// TransitionTo records a barrier from the current tag to the requested
// state and updates the tag. The barrier is recorded even when the states
// match; call sites that want elision can check State first, and skipping
// the record must never drop or reorder earlier barriers on the list.
func (t *Tracked) TransitionTo(list CommandList, to ResourceState) {
	list.Barrier(t.resource, t.state, to)
	t.state = to
}

func (t *Tracked) Destroy() {
	if t.resource != nil {
		t.resource.Destroy()
		t.resource = nil
	}
}
