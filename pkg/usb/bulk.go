package usb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// DefaultBulkTimeout bounds each bulk transfer.
const DefaultBulkTimeout = 5 * time.Second

// Bulk is a claimed interface with one bulk OUT and one bulk IN endpoint,
// used for packet-oriented command/response protocols.
type Bulk struct {
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint

	packetSize int
	Timeout    time.Duration
}

// OpenBulk claims interface number in the active configuration and opens its
// bulk endpoint pair. Interfaces with several pairs are not supported.
func (d *Device) OpenBulk(number int) (*Bulk, error) {
	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return nil, fmt.Errorf("usb: active config: %w", err)
	}
	cfg, err := d.dev.Config(num)
	if err != nil {
		return nil, fmt.Errorf("usb: claim config %d: %w", num, err)
	}
	intf, err := cfg.Interface(number, 0)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("usb: claim interface %d: %w", number, err)
	}

	b := &Bulk{cfg: cfg, intf: intf, Timeout: DefaultBulkTimeout}
	if err := b.openEndpoints(); err != nil {
		b.Close()
		return nil, fmt.Errorf("usb: interface %d: %w", number, err)
	}
	return b, nil
}

func (b *Bulk) openEndpoints() error {
	outNum, inNum := -1, -1
	for _, ep := range b.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionOut {
			if outNum >= 0 {
				return fmt.Errorf("several bulk OUT endpoints")
			}
			outNum = ep.Number
		} else {
			if inNum >= 0 {
				return fmt.Errorf("several bulk IN endpoints")
			}
			inNum = ep.Number
			b.packetSize = ep.MaxPacketSize
		}
	}
	if outNum < 0 || inNum < 0 {
		return fmt.Errorf("no bulk endpoint pair")
	}

	var err error
	if b.out, err = b.intf.OutEndpoint(outNum); err != nil {
		return fmt.Errorf("open OUT endpoint %d: %w", outNum, err)
	}
	if b.in, err = b.intf.InEndpoint(inNum); err != nil {
		return fmt.Errorf("open IN endpoint %d: %w", inNum, err)
	}
	return nil
}

// PacketSize returns the IN endpoint's maximum packet size.
func (b *Bulk) PacketSize() int { return b.packetSize }

// WriteRead sends cmd in one packet and reads one response packet.
func (b *Bulk) WriteRead(cmd []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.Timeout)
	defer cancel()

	if _, err := b.out.WriteContext(ctx, cmd); err != nil {
		return nil, fmt.Errorf("usb: bulk write: %w", err)
	}
	resp := make([]byte, b.packetSize)
	n, err := b.in.ReadContext(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("usb: bulk read: %w", err)
	}
	return resp[:n], nil
}

// Close releases the interface and the configuration.
func (b *Bulk) Close() error {
	if b.intf != nil {
		b.intf.Close()
		b.intf = nil
	}
	if b.cfg != nil {
		err := b.cfg.Close()
		b.cfg = nil
		return err
	}
	return nil
}
