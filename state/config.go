package state

// ObjectiveCfg holds the tunables of an objective function. Zero values are replaced by the defaults in ApplyDefaults.
type ObjectiveCfg struct {
	Name                     string `yaml:"name,omitempty"`                        // latency or mrhof
	ETXScale                 uint32 `yaml:"etx_scale,omitempty"`                   // ETX moving average scale
	ETXAlpha                 uint32 `yaml:"etx_alpha,omitempty"`                   // weight of the previous ETX, out of etx_scale
	DelayScale               uint32 `yaml:"delay_scale,omitempty"`                 // latency moving average scale
	DelayAlpha               uint32 `yaml:"delay_alpha,omitempty"`                 // weight of the previous latency, out of delay_scale
	MaxDelay                 uint32 `yaml:"max_delay,omitempty"`                   // latency clamp in milliseconds
	MaxLinkMetric            uint16 `yaml:"max_link_metric,omitempty"`             // worst acceptable link ETX, unscaled
	MaxPathCost              uint16 `yaml:"max_path_cost,omitempty"`               // path ETX reported without a parent, unscaled
	ParentSwitchThresholdDiv uint16 `yaml:"parent_switch_threshold_div,omitempty"` // hysteresis is ETXDivisor / this
	InitLinkMetric           uint16 `yaml:"init_link_metric,omitempty"`            // link ETX of a new neighbour, unscaled
	PoolCapacity             int    `yaml:"pool_capacity,omitempty"`               // maximum number of in-flight latency samples
}

// NodeCfg represents local node-level configuration
type NodeCfg struct {
	Id                 NodeId       `yaml:"id"`
	Addr               LinkAddr     `yaml:"addr"`
	InstanceId         uint8        `yaml:"instance_id,omitempty"`
	MinHopRankIncrease uint16       `yaml:"min_hop_rank_increase,omitempty"`
	Objective          ObjectiveCfg `yaml:"objective,omitempty"`
	LogPath            string       `yaml:"log_path,omitempty"` // if not empty, logs are also written to this file
}

func DefaultObjectiveCfg() ObjectiveCfg {
	cfg := ObjectiveCfg{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *ObjectiveCfg) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultObjective
	}
	if c.ETXScale == 0 {
		c.ETXScale = DefaultETXScale
	}
	if c.ETXAlpha == 0 {
		c.ETXAlpha = DefaultETXAlpha
	}
	if c.DelayScale == 0 {
		c.DelayScale = DefaultDelayScale
	}
	if c.DelayAlpha == 0 {
		c.DelayAlpha = DefaultDelayAlpha
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxLinkMetric == 0 {
		c.MaxLinkMetric = DefaultMaxLinkMetric
	}
	if c.MaxPathCost == 0 {
		c.MaxPathCost = DefaultMaxPathCost
	}
	if c.ParentSwitchThresholdDiv == 0 {
		c.ParentSwitchThresholdDiv = DefaultParentSwitchThresholdDiv
	}
	if c.InitLinkMetric == 0 {
		c.InitLinkMetric = DefaultInitLinkMetric
	}
	if c.PoolCapacity == 0 {
		c.PoolCapacity = DefaultMaxQueuedPackets
	}
}

func (c *NodeCfg) ApplyDefaults() {
	if c.MinHopRankIncrease == 0 {
		c.MinHopRankIncrease = DefaultMinHopRankIncrease
	}
	c.Objective.ApplyDefaults()
}

// MaxLinkETX is the largest link metric in fixed point.
func (c ObjectiveCfg) MaxLinkETX() uint32 {
	return uint32(c.MaxLinkMetric) * ETXDivisor
}

// SwitchThreshold is the metric difference below which the preferred parent is kept.
func (c ObjectiveCfg) SwitchThreshold() uint32 {
	return ETXDivisor / uint32(c.ParentSwitchThresholdDiv)
}
