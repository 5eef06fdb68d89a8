package discovery

import (
	"context"
	"net"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service parameters for receivers that announce themselves.
const (
	ServiceType = "_emotiva._udp"
	Domain      = "local"
)

// Receiver describes a device found by mDNS browsing. Browsing only
// locates candidates; FetchTransponder is still required to learn the
// port map and protocol version.
type Receiver struct {
	InstanceName string
	Host         string
	Addresses    []string
	Model        string
}

// BrowserConfig configures mDNS browsing.
type BrowserConfig struct {
	// Interface restricts browsing to a single network interface by
	// name. Empty browses all interfaces.
	Interface string
}

// Browse searches the local network for receivers announcing themselves
// over mDNS. Results are streamed on the returned channel, deduplicated
// by instance name with addresses from multiple interfaces merged. The
// channel closes when ctx is cancelled.
func Browse(ctx context.Context, config BrowserConfig) (<-chan *Receiver, error) {
	out := make(chan *Receiver)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if config.Interface != "" {
		iface, err := net.InterfaceByName(config.Interface)
		if err != nil {
			return nil, err
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
	}

	go func() {
		defer close(out)

		seen := make(map[string]*Receiver)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				r := entryToReceiver(entry)
				if r == nil {
					continue
				}

				existing, found := seen[r.InstanceName]
				if found {
					existing.Addresses = mergeAddresses(existing.Addresses, r.Addresses)
					continue
				}

				seen[r.InstanceName] = r
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				delete(seen, entry.Instance)

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

func entryToReceiver(entry *zeroconf.ServiceEntry) *Receiver {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	if len(addrs) == 0 {
		return nil
	}

	var model string
	for _, txt := range entry.Text {
		if len(txt) > 6 && txt[:6] == "model=" {
			model = txt[6:]
		}
	}

	return &Receiver{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Addresses:    addrs,
		Model:        model,
	}
}

func mergeAddresses(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range extra {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}
