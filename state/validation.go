package state

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func ObjectiveConfigValidator(cfg *ObjectiveCfg) error {
	if cfg.ETXScale == 0 || cfg.ETXAlpha > cfg.ETXScale {
		return fmt.Errorf("etx_alpha (%d) must not exceed etx_scale (%d), which must be positive", cfg.ETXAlpha, cfg.ETXScale)
	}
	if cfg.DelayScale == 0 || cfg.DelayAlpha > cfg.DelayScale {
		return fmt.Errorf("delay_alpha (%d) must not exceed delay_scale (%d), which must be positive", cfg.DelayAlpha, cfg.DelayScale)
	}
	if uint64(cfg.MaxLinkMetric)*ETXDivisor > math.MaxUint16 {
		return fmt.Errorf("max_link_metric %d overflows a 16 bit link metric", cfg.MaxLinkMetric)
	}
	if uint64(cfg.MaxPathCost)*ETXDivisor > math.MaxUint16 {
		return fmt.Errorf("max_path_cost %d overflows a 16 bit path metric", cfg.MaxPathCost)
	}
	if uint64(cfg.InitLinkMetric)*ETXDivisor > math.MaxUint16 {
		return fmt.Errorf("init_link_metric %d overflows a 16 bit link metric", cfg.InitLinkMetric)
	}
	if cfg.InitLinkMetric > cfg.MaxLinkMetric {
		return fmt.Errorf("init_link_metric (%d) must not exceed max_link_metric (%d)", cfg.InitLinkMetric, cfg.MaxLinkMetric)
	}
	if cfg.ParentSwitchThresholdDiv == 0 || cfg.ParentSwitchThresholdDiv > ETXDivisor {
		return fmt.Errorf("parent_switch_threshold_div must be within [1, %d], got %d", ETXDivisor, cfg.ParentSwitchThresholdDiv)
	}
	if cfg.MaxDelay == 0 || cfg.MaxDelay > math.MaxUint16 {
		return fmt.Errorf("max_delay must be within [1, %d], got %d", math.MaxUint16, cfg.MaxDelay)
	}
	if cfg.PoolCapacity < 0 {
		return fmt.Errorf("pool_capacity must not be negative, got %d", cfg.PoolCapacity)
	}
	return nil
}

func NodeConfigValidator(node *NodeCfg) error {
	err := NameValidator(string(node.Id))
	if err != nil {
		return err
	}
	if node.Addr.IsNull() || node.Addr.IsBroadcast() {
		return fmt.Errorf("node.addr %s is not a unicast link address", node.Addr)
	}
	if node.MinHopRankIncrease == 0 {
		return fmt.Errorf("node.min_hop_rank_increase must be positive")
	}
	if node.LogPath != "" {
		if err := PathValidator(node.LogPath); err != nil {
			return fmt.Errorf("node.log_path: %w", err)
		}
	}
	return ObjectiveConfigValidator(&node.Objective)
}
