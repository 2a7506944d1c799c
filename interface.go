package weft

//go:generate mockgen -typed -package=weft -destination=./mocks.go -source=./interface.go

// TransportInterface is the boundary to the ordering/transport collaborator.
// Implementations carry serialized operations to the ordering service, which
// assigns each a global sequence number and echoes it to every peer, the
// origin included, in strict sequence order.
type TransportInterface interface {
	// Submit sends a local operation to the ordering service.
	Submit(op Op) error
}

// TransportFunc adapts a function to TransportInterface.
type TransportFunc func(op Op) error

// Submit calls f(op).
func (f TransportFunc) Submit(op Op) error { return f(op) }
