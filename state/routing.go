package state

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

type NodeId string

// Rank is the distance of a node from the sink, larger is further away.
type Rank uint16

func (r Rank) String() string {
	if r == InfiniteRank {
		return "inf"
	}
	return fmt.Sprintf("%d", uint16(r))
}

// LinkAddr is a link-layer (MAC) address, shorter addresses are right aligned.
type LinkAddr [8]byte

var (
	NullAddr      = LinkAddr{}
	BroadcastAddr = LinkAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

func ParseLinkAddr(s string) (LinkAddr, error) {
	var addr LinkAddr
	raw := strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	if raw == "" {
		return addr, fmt.Errorf("empty link address")
	}
	if len(raw)%2 != 0 {
		raw = "0" + raw
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return addr, fmt.Errorf("invalid link address %q: %w", s, err)
	}
	if len(b) > len(addr) {
		return addr, fmt.Errorf("invalid link address %q: longer than %d bytes", s, len(addr))
	}
	copy(addr[len(addr)-len(b):], b)
	return addr, nil
}

func MustParseLinkAddr(s string) LinkAddr {
	addr, err := ParseLinkAddr(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a LinkAddr) IsNull() bool {
	return a == NullAddr
}

func (a LinkAddr) IsBroadcast() bool {
	return a == BroadcastAddr
}

func (a LinkAddr) Compare(b LinkAddr) int {
	return slices.Compare(a[:], b[:])
}

func (a LinkAddr) String() string {
	parts := make([]string, len(a))
	for i, b := range a {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

func (a LinkAddr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *LinkAddr) UnmarshalText(text []byte) error {
	addr, err := ParseLinkAddr(string(text))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// TxStatus is the outcome of a link-layer transmission as reported by the MAC.
type TxStatus int

const (
	TxOK TxStatus = iota
	TxCollision
	TxNoAck
	TxDeferred
	TxErr
	TxErrFatal
)

var txStatusNames = []string{"ok", "collision", "noack", "deferred", "err", "fatal"}

func (t TxStatus) String() string {
	if int(t) >= 0 && int(t) < len(txStatusNames) {
		return txStatusNames[t]
	}
	return fmt.Sprintf("TxStatus(%d)", int(t))
}

func (t TxStatus) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TxStatus) UnmarshalText(text []byte) error {
	idx := slices.Index(txStatusNames, strings.ToLower(strings.TrimSpace(string(text))))
	if idx == -1 {
		return fmt.Errorf("unknown tx status %q, expected one of %v", text, txStatusNames)
	}
	*t = TxStatus(idx)
	return nil
}

// LinkEvent is a transmission completion reported by the link layer. BeforeSend and AfterAck are
// millisecond timestamps captured right before the frame went to the radio and right after the
// acknowledgement (or its timeout) resolved.
type LinkEvent struct {
	Dest       LinkAddr `yaml:"to"`
	Status     TxStatus `yaml:"status"`
	NumTx      int      `yaml:"numtx"`
	BeforeSend uint32   `yaml:"before"`
	AfterAck   uint32   `yaml:"after"`
}

// Parent is a neighbour that advertised a DAG. The objective function owns LinkMetric and
// DelayMetric, everything else is maintained by the routing engine.
type Parent struct {
	Addr LinkAddr
	Dag  *Dag
	Rank Rank
	// LinkMetric is the smoothed ETX to this neighbour, scaled by ETXDivisor
	LinkMetric uint16
	// DelayMetric is the smoothed latency to this neighbour in milliseconds
	DelayMetric uint32
	// MC is the metric container the parent last advertised
	MC MetricContainer
}

func (p *Parent) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("(addr: %s, rank: %s, etx: %d, delay: %d)", p.Addr, p.Rank, p.LinkMetric, p.DelayMetric)
}

type Dag struct {
	Instance   *Instance
	DagID      netip.Addr
	Prefix     netip.Prefix
	Version    uint8
	Grounded   bool
	Preference uint8
	Rank       Rank
	Joined     bool
	// PreferredParent may be nil
	PreferredParent *Parent
	Parents         map[LinkAddr]*Parent
}

func NewDag(instance *Instance, id netip.Addr) *Dag {
	return &Dag{
		Instance: instance,
		DagID:    id,
		Rank:     InfiniteRank,
		Parents:  make(map[LinkAddr]*Parent),
	}
}

// SortedParents returns the parents of this DAG ordered by link address.
func (d *Dag) SortedParents() []*Parent {
	parents := make([]*Parent, 0, len(d.Parents))
	for _, p := range d.Parents {
		parents = append(parents, p)
	}
	slices.SortFunc(parents, func(a, b *Parent) int {
		return a.Addr.Compare(b.Addr)
	})
	return parents
}

func (d *Dag) String() string {
	if d == nil {
		return "<nil>"
	}
	return fmt.Sprintf("(dag: %s, grounded: %t, pref: %d, rank: %s, joined: %t)", d.DagID, d.Grounded, d.Preference, d.Rank, d.Joined)
}

type Instance struct {
	Id                 uint8
	OCP                uint16
	MinHopRankIncrease uint16
	CurrentDag         *Dag
	// MC is the metric container this node advertises
	MC   MetricContainer
	Dags map[netip.Addr]*Dag
}

func NewInstance(id uint8, ocp uint16, minHopRankIncrease uint16) *Instance {
	if minHopRankIncrease == 0 {
		minHopRankIncrease = DefaultMinHopRankIncrease
	}
	return &Instance{
		Id:                 id,
		OCP:                ocp,
		MinHopRankIncrease: minHopRankIncrease,
		Dags:               make(map[netip.Addr]*Dag),
	}
}

func (i *Instance) RootRank() Rank {
	return Rank(i.MinHopRankIncrease)
}

// SortedDags returns the DAGs of this instance ordered by DAG id.
func (i *Instance) SortedDags() []*Dag {
	dags := make([]*Dag, 0, len(i.Dags))
	for _, d := range i.Dags {
		dags = append(dags, d)
	}
	slices.SortFunc(dags, func(a, b *Dag) int {
		return a.DagID.Compare(b.DagID)
	})
	return dags
}

// FindParent looks up a parent by address across every DAG of the instance.
func (i *Instance) FindParent(addr LinkAddr) *Parent {
	for _, d := range i.SortedDags() {
		if p, ok := d.Parents[addr]; ok {
			return p
		}
	}
	return nil
}
