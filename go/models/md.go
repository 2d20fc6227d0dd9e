package models

// MDCategory namespaces the per-instruction metadata published to the
// pipeline simulator.
type MDCategory int

const (
	// Memory access descriptors consumed by the simulated LS unit.
	MDLSUnitMemAccess MDCategory = iota
	// Region boundary markers.
	MDBinaryRegionMarkers
)

// MDRegistry stores metadata records per category, keyed by the trace
// sequence number of the instruction they belong to.
type MDRegistry map[MDCategory]map[uint32]interface{}

func (r MDRegistry) Category(cat MDCategory) map[uint32]interface{} {
	m, ok := r[cat]
	if !ok {
		m = make(map[uint32]interface{})
		r[cat] = m
	}
	return m
}

// MDExchanger carries metadata between a broker and the simulator. The
// broker assigns each delivered instruction a monotonically increasing
// trace sequence number, records it in IndexMap, and files metadata under
// that number.
type MDExchanger struct {
	Registry MDRegistry
	IndexMap map[Ins]uint32
}

func NewMDExchanger() *MDExchanger {
	return &MDExchanger{
		Registry: make(MDRegistry),
		IndexMap: make(map[Ins]uint32),
	}
}
