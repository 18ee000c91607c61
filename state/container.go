package state

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const mcHeaderLen = 4

var ErrShortContainer = errors.New("metric container too short")

// MetricContainer is the path metric object carried in DIOs. ETX is scaled by ETXDivisor and
// Latency is in milliseconds. Length is the size of the object body, 2 when only ETX is
// carried and 4 when latency follows it.
type MetricContainer struct {
	Type    uint8  `yaml:"type,omitempty"`
	Flags   uint8  `yaml:"flags,omitempty"`
	Aggr    uint8  `yaml:"aggr,omitempty"`
	Prec    uint8  `yaml:"prec,omitempty"`
	Length  uint8  `yaml:"length,omitempty"`
	ETX     uint16 `yaml:"etx"`
	Latency uint16 `yaml:"latency"`
}

func (mc MetricContainer) MarshalBinary() ([]byte, error) {
	if mc.Length != 2 && mc.Length != 4 {
		return nil, fmt.Errorf("unsupported metric container length %d", mc.Length)
	}
	if mc.Aggr > 0x7 || mc.Prec > 0xf {
		return nil, fmt.Errorf("metric container aggr %d / prec %d out of range", mc.Aggr, mc.Prec)
	}
	buf := make([]byte, mcHeaderLen, mcHeaderLen+int(mc.Length))
	buf[0] = mc.Type
	buf[1] = mc.Flags >> 1
	buf[2] = (mc.Flags&1)<<7 | mc.Aggr<<4 | mc.Prec
	buf[3] = mc.Length
	buf = binary.BigEndian.AppendUint16(buf, mc.ETX)
	if mc.Length == 4 {
		buf = binary.BigEndian.AppendUint16(buf, mc.Latency)
	}
	return buf, nil
}

func (mc *MetricContainer) UnmarshalBinary(data []byte) error {
	if len(data) < mcHeaderLen {
		return ErrShortContainer
	}
	length := data[3]
	if length != 2 && length != 4 {
		return fmt.Errorf("unsupported metric container length %d", length)
	}
	if len(data) < mcHeaderLen+int(length) {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrShortContainer, mcHeaderLen+int(length), len(data))
	}
	*mc = MetricContainer{
		Type:   data[0],
		Flags:  data[1]<<1 | data[2]>>7,
		Aggr:   (data[2] >> 4) & 0x7,
		Prec:   data[2] & 0xf,
		Length: length,
		ETX:    binary.BigEndian.Uint16(data[4:6]),
	}
	if length == 4 {
		mc.Latency = binary.BigEndian.Uint16(data[6:8])
	}
	return nil
}

// String prints the path ETX as a decimal the way the stack logs it.
func (mc MetricContainer) String() string {
	return fmt.Sprintf("(type: %d, etx: %d.%02d, latency: %dms)", mc.Type,
		mc.ETX/ETXDivisor, (uint32(mc.ETX)%ETXDivisor*100)/ETXDivisor, mc.Latency)
}
