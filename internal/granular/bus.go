package granular

import (
	"fmt"
	"time"

	"github.com/satindergrewal/blobular/internal/graph"
)

// BusCompressor holds the fixed shared-bus compressor settings.
var BusCompressor = graph.CompressorSettings{
	ThresholdDB: -24,
	KneeDB:      30,
	Ratio:       12,
	Attack:      3 * time.Millisecond,
	Release:     250 * time.Millisecond,
}

// Bus is the path every grain takes to the output: compressor, then master
// gain, then the context destination.
type Bus struct {
	Compressor *graph.Compressor
	Master     *graph.Gain
}

// NewBus wires a bus into ctx.
func NewBus(ctx *graph.Context, masterGain float64) (*Bus, error) {
	comp, err := ctx.NewCompressor(BusCompressor)
	if err != nil {
		return nil, fmt.Errorf("shared bus: %w", err)
	}
	master := ctx.NewGain()
	master.Gain.SetValue(masterGain)
	comp.Connect(master)
	master.Connect(ctx.Destination())
	return &Bus{Compressor: comp, Master: master}, nil
}

// Input is the node grains connect to.
func (b *Bus) Input() graph.Node { return b.Compressor }
