//go:build linux

package socketcan

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	canLinkType     = "can"
	sizeOfBitTiming = 32
)

// Netlink access to the CAN link settings of an interface
type link struct {
	name  string
	index int32
}

func newLink(name string) (*link, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return &link{name: name, index: int32(iface.Index)}, nil
}

// ifinfomsg header of a RTM_NEWLINK request
func (l *link) ifInfo(flags uint32, change uint32) []byte {
	buf := make([]byte, 2)
	buf[0] = unix.AF_UNSPEC
	buf[1] = 0 // reserved
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(l.index))
	buf = binary.LittleEndian.AppendUint32(buf, flags)
	buf = binary.LittleEndian.AppendUint32(buf, change)
	return buf
}

func (l *link) execute(data []byte) error {
	c, err := netlink.Dial(unix.NETLINK_ROUTE, &netlink.Config{})
	if err != nil {
		return fmt.Errorf("couldn't dial netlink socket: %w", err)
	}
	defer c.Close()

	req := netlink.Message{
		Header: netlink.Header{
			Flags: netlink.Request | netlink.Acknowledge,
			Type:  unix.RTM_NEWLINK,
		},
		Data: data,
	}
	res, err := c.Execute(req)
	if err != nil {
		return err
	}
	if len(res) > 1 {
		return fmt.Errorf("expected 1 message, got %d", len(res))
	}
	return nil
}

// Bring the link up or down
func (l *link) setUp(up bool) error {
	var flags uint32
	if up {
		flags = unix.IFF_UP
	}
	if err := l.execute(l.ifInfo(flags, unix.IFF_UP)); err != nil {
		return fmt.Errorf("couldn't set link %v up=%v: %w", l.name, up, err)
	}
	return nil
}

// struct can_bittiming with only the bitrate set, the driver computes the rest
func bitTiming(bitrate uint32) []byte {
	buf := make([]byte, sizeOfBitTiming)
	nlenc.PutUint32(buf[0:4], bitrate)
	return buf
}

func encodeBitrate(bitrate uint32) ([]byte, error) {
	ae := netlink.NewAttributeEncoder()
	ae.Nested(unix.IFLA_LINKINFO, func(nae *netlink.AttributeEncoder) error {
		nae.String(unix.IFLA_INFO_KIND, canLinkType)
		nae.Nested(unix.IFLA_INFO_DATA, func(nae *netlink.AttributeEncoder) error {
			nae.Bytes(unix.IFLA_CAN_BITTIMING, bitTiming(bitrate))
			return nil
		})
		return nil
	})
	return ae.Encode()
}

// To set bitrate, the link must be down
func (l *link) setBitrate(bitrate uint32) error {
	attrs, err := encodeBitrate(bitrate)
	if err != nil {
		return fmt.Errorf("couldn't encode message: %w", err)
	}
	if err := l.execute(append(l.ifInfo(0, 0), attrs...)); err != nil {
		return fmt.Errorf("couldn't set bitrate: %w", err)
	}
	log.Infof("[SOCKETCAN] %v bitrate set to %v", l.name, bitrate)
	return nil
}
