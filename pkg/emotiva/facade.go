package emotiva

import (
	"context"
	"strconv"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/wire"
)

// StatusProperties are the properties Status polls when the caller
// names none.
var StatusProperties = []string{
	"power", "volume", "mute", "input", "mode",
	"zone2_power", "zone2_volume", "zone2_mute", "zone2_input",
}

// PowerOn turns the main zone on.
func (c *Client) PowerOn(ctx context.Context) error {
	return c.SendCommand(ctx, "power_on")
}

// PowerOff turns the main zone off.
func (c *Client) PowerOff(ctx context.Context) error {
	return c.SendCommand(ctx, "power_off")
}

// SetVolume sets the main zone volume in whole dB.
func (c *Client) SetVolume(ctx context.Context, db int) error {
	return c.SendCommand(ctx, "set_volume", wire.Attr{Name: wire.AttrValue, Value: strconv.Itoa(db)})
}

// VolumeUp raises the main zone volume one step.
func (c *Client) VolumeUp(ctx context.Context) error {
	return c.SendCommand(ctx, "volume", wire.Attr{Name: wire.AttrValue, Value: "1"})
}

// VolumeDown lowers the main zone volume one step.
func (c *Client) VolumeDown(ctx context.Context) error {
	return c.SendCommand(ctx, "volume", wire.Attr{Name: wire.AttrValue, Value: "-1"})
}

// MuteOn mutes the main zone.
func (c *Client) MuteOn(ctx context.Context) error {
	return c.SendCommand(ctx, "mute_on")
}

// MuteOff unmutes the main zone.
func (c *Client) MuteOff(ctx context.Context) error {
	return c.SendCommand(ctx, "mute_off")
}

// ToggleMute flips the main zone mute state.
func (c *Client) ToggleMute(ctx context.Context) error {
	return c.SendCommand(ctx, "mute")
}

// SetInput selects an input source by its command name, e.g. "hdmi1".
func (c *Client) SetInput(ctx context.Context, source string) error {
	return c.SendCommand(ctx, source)
}

// Zone2PowerOn turns zone 2 on.
func (c *Client) Zone2PowerOn(ctx context.Context) error {
	return c.SendCommand(ctx, "zone2_power_on")
}

// Zone2PowerOff turns zone 2 off.
func (c *Client) Zone2PowerOff(ctx context.Context) error {
	return c.SendCommand(ctx, "zone2_power_off")
}

// Zone2SetVolume sets the zone 2 volume in whole dB.
func (c *Client) Zone2SetVolume(ctx context.Context, db int) error {
	return c.SendCommand(ctx, "zone2_set_volume", wire.Attr{Name: wire.AttrValue, Value: strconv.Itoa(db)})
}

// Zone2ToggleMute flips the zone 2 mute state.
func (c *Client) Zone2ToggleMute(ctx context.Context) error {
	return c.SendCommand(ctx, "zone2_mute")
}

// Status polls the named properties, or StatusProperties when names is
// empty, and returns whatever the device answered within the configured
// timeout.
func (c *Client) Status(ctx context.Context, names ...string) (map[string]string, error) {
	if len(names) == 0 {
		names = StatusProperties
	}
	return c.RequestProperties(ctx, names, time.Duration(0))
}
