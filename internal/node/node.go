package node

// Node is the identity every relay participant exposes on its admin surface.
type Node interface {
	NodeID() string
	Kind() string
	Status() any
}
