//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/rplof/core"
	"github.com/encodeous/rplof/state"
)

// VirtualLink is one direction of a radio link between two nodes.
type VirtualLink struct {
	From       state.LinkAddr
	To         state.LinkAddr
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
}

func (v *VirtualLink) WithLatency(lat, jitter time.Duration) *VirtualLink {
	v.Latency = lat
	v.Jitter = jitter
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

func (v *VirtualLink) delay() time.Duration {
	return v.Latency + time.Duration(rand.Float64()*float64(v.Jitter))
}

func (v *VirtualLink) lost() bool {
	return rand.Float64() < v.PacketLoss
}

// VirtualHarness runs a set of nodes in memory. The first node is the root. Every joined node
// periodically advertises a DIO over its outgoing links, and every other node periodically sends
// a frame towards the root through its preferred parent.
type VirtualHarness struct {
	sync.Mutex
	DagID           netip.Addr
	Nodes           []state.NodeCfg
	Links           []*VirtualLink
	States          []*state.State
	Context         context.Context
	Cancel          context.CancelCauseFunc
	DIOInterval     time.Duration
	TrafficInterval time.Duration
	AckTimeout      time.Duration
	MaxRetries      int
	LogLevel        slog.Level

	clock *state.SystemClock
	wg    sync.WaitGroup
}

func (v *VirtualHarness) IndexOf(id state.NodeId) int {
	return slices.IndexFunc(v.Nodes, func(cfg state.NodeCfg) bool {
		return cfg.Id == id
	})
}

func (v *VirtualHarness) Addr(id state.NodeId) state.LinkAddr {
	return v.Nodes[v.IndexOf(id)].Addr
}

func (v *VirtualHarness) NewNode(id state.NodeId, addr string, of string) {
	v.Nodes = append(v.Nodes, state.NodeCfg{
		Id:        id,
		Addr:      state.MustParseLinkAddr(addr),
		Objective: state.ObjectiveCfg{Name: of},
	})
}

func (v *VirtualHarness) AddLink(from, to state.NodeId) *VirtualLink {
	v.Lock()
	defer v.Unlock()
	link := &VirtualLink{
		From: v.Addr(from),
		To:   v.Addr(to),
	}
	v.Links = append(v.Links, link)
	return link
}

// Connect adds a symmetric link between a and b.
func (v *VirtualHarness) Connect(a, b state.NodeId, lat time.Duration) {
	v.AddLink(a, b).WithLatency(lat, 0)
	v.AddLink(b, a).WithLatency(lat, 0)
}

// Cut drops every frame between a and b from now on.
func (v *VirtualHarness) Cut(a, b state.NodeId) {
	v.Lock()
	defer v.Unlock()
	x, y := v.Addr(a), v.Addr(b)
	for _, link := range v.Links {
		if (link.From == x && link.To == y) || (link.From == y && link.To == x) {
			link.PacketLoss = 1
		}
	}
}

func (v *VirtualHarness) link(from, to state.LinkAddr) *VirtualLink {
	v.Lock()
	defer v.Unlock()
	idx := slices.IndexFunc(v.Links, func(link *VirtualLink) bool {
		return link.From == from && link.To == to
	})
	if idx == -1 {
		return nil
	}
	cpy := *v.Links[idx]
	return &cpy
}

func (v *VirtualHarness) outgoing(from state.LinkAddr) []VirtualLink {
	v.Lock()
	defer v.Unlock()
	out := make([]VirtualLink, 0)
	for _, link := range v.Links {
		if link.From == from {
			out = append(out, *link)
		}
	}
	return out
}

func (v *VirtualHarness) stateOf(addr state.LinkAddr) *state.State {
	idx := slices.IndexFunc(v.Nodes, func(cfg state.NodeCfg) bool {
		return cfg.Addr == addr
	})
	if idx == -1 {
		return nil
	}
	return v.States[idx]
}

// after runs fun once d has elapsed, unless the harness stops first.
func (v *VirtualHarness) after(d time.Duration, fun func()) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		select {
		case <-v.Context.Done():
		case <-time.After(d):
			fun()
		}
	}()
}

func (v *VirtualHarness) Start() chan error {
	if v.DIOInterval == 0 {
		v.DIOInterval = 50 * time.Millisecond
	}
	if v.TrafficInterval == 0 {
		v.TrafficInterval = 20 * time.Millisecond
	}
	if v.AckTimeout == 0 {
		v.AckTimeout = 30 * time.Millisecond
	}
	if v.MaxRetries == 0 {
		v.MaxRetries = 3
	}
	if !v.DagID.IsValid() {
		v.DagID = netip.MustParseAddr("fd00::1")
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	v.Context = ctx
	v.Cancel = cancel
	v.clock = state.NewSystemClock()
	v.States = make([]*state.State, len(v.Nodes))
	errChan := make(chan error, 128) // a large number so we dont get blocked

	for idx, cfg := range v.Nodes {
		logger, err := core.NewLogger(cfg.Id, "", v.LogLevel)
		if err != nil {
			errChan <- err
			continue
		}
		s, dispatch := core.NewState(cfg, v.clock, logger)
		done, err := core.Start(s, dispatch)
		if err != nil {
			errChan <- fmt.Errorf("%s: %w", cfg.Id, err)
			continue
		}
		v.States[idx] = s
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			if err := <-done; err != nil {
				errChan <- fmt.Errorf("%s: %w", cfg.Id, err)
			}
		}()
	}
	if v.States[0] == nil {
		errChan <- errors.New("root did not start")
		return errChan
	}
	_, err := v.States[0].DispatchWait(func(s *state.State) (any, error) {
		core.Get[*core.RplRouter](s).Root(v.DagID, netip.PrefixFrom(v.DagID, 64))
		return nil, nil
	})
	if err != nil {
		errChan <- err
	}

	v.wg.Add(2)
	go v.advertise()
	go v.traffic()
	return errChan
}

func (v *VirtualHarness) Stop() {
	v.Cancel(errors.New("stopping harness"))
	for _, s := range v.States {
		if s != nil {
			s.Dispatch(nil)
		}
	}
	v.wg.Wait()
}

func snapshotDIO(s *state.State) (core.DIO, bool) {
	res, err := s.DispatchWait(func(s *state.State) (any, error) {
		dag := s.Instance.CurrentDag
		if dag == nil || !dag.Joined {
			return nil, nil
		}
		return core.DIO{
			DagID:      dag.DagID,
			Prefix:     dag.Prefix,
			Version:    dag.Version,
			Rank:       dag.Rank,
			Grounded:   dag.Grounded,
			Preference: dag.Preference,
			MC:         s.Instance.MC,
		}, nil
	})
	if err != nil || res == nil {
		return core.DIO{}, false
	}
	return res.(core.DIO), true
}

func (v *VirtualHarness) advertise() {
	defer v.wg.Done()
	for {
		select {
		case <-v.Context.Done():
			return
		case <-time.After(v.DIOInterval):
		}
		for idx, s := range v.States {
			if s == nil {
				continue
			}
			dio, ok := snapshotDIO(s)
			if !ok {
				continue
			}
			from := v.Nodes[idx].Addr
			for _, link := range v.outgoing(from) {
				to := v.stateOf(link.To)
				if to == nil || link.lost() {
					continue
				}
				v.after(link.delay(), func() {
					to.Dispatch(func(s *state.State) error {
						core.Get[*core.RplRouter](s).HandleDIO(from, dio)
						return nil
					})
				})
			}
		}
	}
}

type sentFrame struct {
	nh     state.LinkAddr
	before uint32
}

func (v *VirtualHarness) traffic() {
	defer v.wg.Done()
	for {
		select {
		case <-v.Context.Done():
			return
		case <-time.After(v.TrafficInterval):
		}
		for idx, s := range v.States[1:] {
			if s == nil {
				continue
			}
			res, err := s.DispatchWait(func(s *state.State) (any, error) {
				nh, ok := core.Get[*core.RplRouter](s).SendPacket(v.DagID)
				if !ok {
					return nil, nil
				}
				return sentFrame{nh, s.Clock.Millis()}, nil
			})
			if err != nil || res == nil {
				continue
			}
			frame := res.(sentFrame)
			from := v.Nodes[idx+1].Addr
			link := v.link(from, frame.nh)

			ev := state.LinkEvent{
				Dest:       frame.nh,
				Status:     state.TxOK,
				NumTx:      1,
				BeforeSend: frame.before,
			}
			var wait time.Duration
			if link == nil || link.lost() {
				ev.Status = state.TxNoAck
				ev.NumTx = v.MaxRetries
				wait = v.AckTimeout
			} else {
				// the frame and its acknowledgement both cross the link
				wait = link.delay() + link.delay()
			}
			v.after(wait, func() {
				ev.AfterAck = v.clock.Millis()
				s.Dispatch(func(s *state.State) error {
					core.Get[*core.RplRouter](s).TxComplete(ev)
					return nil
				})
			})
		}
	}
}

// Preferred returns the preferred parent of a node in its current DAG.
func (v *VirtualHarness) Preferred(id state.NodeId) (state.LinkAddr, bool) {
	s := v.States[v.IndexOf(id)]
	res, err := s.DispatchWait(func(s *state.State) (any, error) {
		dag := s.Instance.CurrentDag
		if dag == nil || dag.PreferredParent == nil {
			return nil, nil
		}
		return dag.PreferredParent.Addr, nil
	})
	if err != nil || res == nil {
		return state.NullAddr, false
	}
	return res.(state.LinkAddr), true
}

// Snapshot returns a copy of the node's current DAG rank and advertised container.
func (v *VirtualHarness) Snapshot(id state.NodeId) (state.Rank, state.MetricContainer) {
	dio, ok := snapshotDIO(v.States[v.IndexOf(id)])
	if !ok {
		return state.InfiniteRank, state.MetricContainer{}
	}
	return dio.Rank, dio.MC
}

// RemoveNeighbour makes node id forget its neighbour.
func (v *VirtualHarness) RemoveNeighbour(id, neigh state.NodeId) {
	addr := v.Addr(neigh)
	s := v.States[v.IndexOf(id)]
	_, _ = s.DispatchWait(func(s *state.State) (any, error) {
		core.Get[*core.RplRouter](s).RemoveNeighbour(addr)
		return nil, nil
	})
}
