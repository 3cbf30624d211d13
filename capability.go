package capnp

// A CapabilityID is an index into a Message's CapTable. It is the only
// thing the wire format actually carries for a capability pointer; the
// Client it names is resolved out of band by the RPC runtime (spec.md
// §3 "Capability", §5 "Shared resources").
type CapabilityID uint32

// A Client is an opaque handle to a capability. The core never calls
// through it; it exists purely so the cap table has something typed to
// hold, the way matheusd-go-capnp's localpromise.go treats Client as a
// value supplied and resolved entirely by the RPC layer.
type Client interface {
	// IsValid reports whether the handle still names a live capability.
	// A nil Client is always invalid.
	IsValid() bool
}

// OpaqueClient is the zero-dependency Client the core itself can
// construct, e.g. for tests that don't wire up a real RPC runtime.
type OpaqueClient struct {
	name string
}

// NewOpaqueClient returns a Client that carries no behavior, only a name
// for diagnostics.
func NewOpaqueClient(name string) OpaqueClient { return OpaqueClient{name: name} }

func (c OpaqueClient) IsValid() bool  { return c.name != "" }
func (c OpaqueClient) String() string { return c.name }

// CapTable is the indexed list of capabilities referenced by a Message's
// pointers. The RPC runtime populates it; the core only stores, clones and
// indexes it.
type CapTable struct {
	clients []Client
}

// Len returns the number of entries.
func (t *CapTable) Len() int { return len(t.clients) }

// At returns the client at index i, or nil if i is out of range.
func (t *CapTable) At(i CapabilityID) Client {
	if int(i) >= len(t.clients) {
		return nil
	}
	return t.clients[i]
}

// Add appends c to the table and returns its index.
func (t *CapTable) Add(c Client) CapabilityID {
	t.clients = append(t.clients, c)
	return CapabilityID(len(t.clients) - 1)
}

// Reset empties the table.
func (t *CapTable) Reset() { t.clients = nil }

// An Interface is a capability pointer: a capability index bound to the
// segment it was read from (so it can resolve against that message's
// CapTable).
type Interface struct {
	seg *Segment
	cap CapabilityID
}

// NewInterface returns an Interface naming capability index cap in seg's
// message.
func NewInterface(seg *Segment, cap CapabilityID) Interface {
	return Interface{seg: seg, cap: cap}
}

// IsValid reports whether i refers to a segment (as opposed to being the
// zero value returned for a null pointer slot).
func (i Interface) IsValid() bool { return i.seg != nil }

// Capability returns the raw capability index.
func (i Interface) Capability() CapabilityID { return i.cap }

// Client resolves i against its message's cap table.
func (i Interface) Client() Client {
	if i.seg == nil {
		return nil
	}
	return i.seg.msg.CapTable().At(i.cap)
}

// ToPtr converts i to a generic pointer.
func (i Interface) ToPtr() Ptr {
	return Ptr{seg: i.seg, lenOrCap: uint32(i.cap), flags: interfacePtrFlag()}
}

func (i Interface) value() rawPointer {
	return rawInterfacePointer(i.cap)
}
