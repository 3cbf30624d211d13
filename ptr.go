package capnp

// ptrFlags tags what kind of value a Ptr holds and, above the type bits,
// a struct's structFlags or a list's shape — enough to dispatch
// ToPtr()/Struct()/List()/Interface() without an extra field.
type ptrFlags uint8

type ptrType uint8

const (
	noPtrType ptrType = iota
	structPtrType
	listPtrType
	interfacePtrType
)

const ptrTypeMask ptrFlags = 0x3

func structPtrFlag(sf structFlags) ptrFlags {
	return ptrFlags(structPtrType) | ptrFlags(sf)<<2
}

func listPtrFlag(lf listFlags) ptrFlags {
	return ptrFlags(listPtrType) | ptrFlags(lf)<<2
}

func interfacePtrFlag() ptrFlags { return ptrFlags(interfacePtrType) }

func (f ptrFlags) ptrType() ptrType  { return ptrType(f & ptrTypeMask) }
func (f ptrFlags) listFlags() listFlags { return listFlags(f >> 2) }

// Ptr is an untyped reference to a struct, list or capability (spec.md's
// "any-pointer"). The zero value is the null pointer.
type Ptr struct {
	seg        *Segment
	off        Address
	lenOrCap   uint32
	size       ObjectSize
	depthLimit uint
	flags      ptrFlags
}

// IsValid reports whether p is non-null.
func (p Ptr) IsValid() bool { return p.seg != nil }

// Struct returns p as a Struct, or the zero Struct if p is not a struct
// pointer.
func (p Ptr) Struct() Struct {
	if p.flags.ptrType() != structPtrType || p.seg == nil {
		return Struct{}
	}
	return Struct{seg: p.seg, off: p.off, size: p.size, depthLimit: p.depthLimit, flags: structFlags(p.flags >> 2)}
}

// List returns p as a List, or the zero List if p is not a list pointer.
func (p Ptr) List() List {
	if p.flags.ptrType() != listPtrType || p.seg == nil {
		return List{}
	}
	return List{
		seg:        p.seg,
		off:        p.off,
		length:     int32(p.lenOrCap),
		size:       p.size,
		depthLimit: p.depthLimit,
		flags:      p.flags.listFlags(),
	}
}

// Interface returns p as an Interface, or the zero Interface if p is not a
// capability pointer.
func (p Ptr) Interface() Interface {
	if p.flags.ptrType() != interfacePtrType || p.seg == nil {
		return Interface{}
	}
	return Interface{seg: p.seg, cap: CapabilityID(p.lenOrCap)}
}
