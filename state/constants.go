package state

import "time"

// Protocol constants, these are fixed by the wire format and are not configurable.
const (
	// ETXDivisor is the fixed-point divisor of every ETX value carried in a metric container.
	ETXDivisor = 128

	// InfiniteRank is the rank of a node that has no usable path to the sink.
	InfiniteRank = Rank(0xffff)

	// DefaultMinHopRankIncrease is the rank of the sink itself (ROOT_RANK).
	DefaultMinHopRankIncrease = 256

	// objective code points
	OCPMRHOF   = uint16(1)
	OCPLatency = uint16(3)
)

// Metric container object types, flags and aggregation modes.
const (
	MCTypeNone       = uint8(0)
	MCTypeNSA        = uint8(1)
	MCTypeEnergy     = uint8(2)
	MCTypeHopCount   = uint8(3)
	MCTypeThroughput = uint8(4)
	MCTypeLatency    = uint8(5)
	MCTypeLQL        = uint8(6)
	MCTypeETX        = uint8(7)
	MCTypeLC         = uint8(8)

	MCFlagP = uint8(0x8)
	MCFlagC = uint8(0x4)
	MCFlagO = uint8(0x2)
	MCFlagR = uint8(0x1)

	MCAggrAdditive       = uint8(0)
	MCAggrMaximum        = uint8(1)
	MCAggrMinimum        = uint8(2)
	MCAggrMultiplicative = uint8(3)
)

// Objective defaults, overridable through ObjectiveCfg.
const (
	DefaultETXScale   = 100
	DefaultETXAlpha   = 90
	DefaultDelayScale = 100
	DefaultDelayAlpha = 90

	// DefaultMaxLinkMetric rejects parents with a worse link metric than this, it is also the punitive packet ETX.
	DefaultMaxLinkMetric = 10
	// DefaultMaxPathCost is reported as the path cost when there is no preferred parent.
	DefaultMaxPathCost = 100
	// The metric must differ by more than ETXDivisor/DefaultParentSwitchThresholdDiv to switch preferred parent.
	DefaultParentSwitchThresholdDiv = 2
	// DefaultInitLinkMetric is the link metric given to a freshly discovered neighbour.
	DefaultInitLinkMetric = 5

	// DefaultMaxDelay is the latency clamp in milliseconds.
	DefaultMaxDelay = 3000
	// DefaultMaxQueuedPackets bounds the number of in-flight latency samples.
	DefaultMaxQueuedPackets = 8

	DefaultObjective = "latency"
)

var (
	// DropNoticeTTL suppresses repeated pool exhaustion notices for the same destination.
	DropNoticeTTL = time.Second * 10
	GcDelay       = time.Second * 5
	// SlowDispatch is the dispatch duration after which the main loop warns.
	SlowDispatch = time.Millisecond * 4
)
