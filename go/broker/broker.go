package broker

import (
	"github.com/charmbracelet/log"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// Features advertised by a broker.
type Features uint

const (
	// The broker publishes per-instruction metadata.
	FeatureMetadata Features = 1 << iota
	// The broker slices the stream into named regions.
	FeatureRegion
)

// RegionDescriptor tells the caller whether the batch it just fetched ends
// a region, and which one.
type RegionDescriptor struct {
	IsEnd       bool
	Description string
}

// Broker feeds decoded guest instructions to the pipeline simulator.
//
// buf is a fixed scratch array the broker always fills from index 0. size
// is the desired number of instructions; size < 0 means fill buf. Both
// fetch calls return the number of instructions delivered, possibly fewer
// than asked, or -1 once the stream has ended. FetchRegion additionally
// aligns batches with region boundaries: the last instruction of a region
// is never in the middle of a batch.
type Broker interface {
	Features() Features
	Fetch(buf []models.Ins, size int, mde *models.MDExchanger) int
	FetchRegion(buf []models.Ins, size int, mde *models.MDExchanger) (int, RegionDescriptor)
}

// Facade is what the host hands to a plugin's register callback: the target
// description and the hook to install the constructed broker on.
type Facade struct {
	Arch   *models.Arch
	Logger *log.Logger

	broker Broker
}

func (f *Facade) SetBroker(b Broker) {
	f.broker = b
}

func (f *Facade) Broker() Broker {
	return f.broker
}
