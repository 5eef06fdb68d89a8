// Package interactive provides the line-based command shell for
// emotiva-cli.
package interactive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/emotiva-protocol/emotiva-go/pkg/discovery"
	"github.com/emotiva-protocol/emotiva-go/pkg/emotiva"
	"github.com/emotiva-protocol/emotiva-go/pkg/wire"
)

func valueAttr(v string) wire.Attr {
	return wire.Attr{Name: wire.AttrValue, Value: v}
}

// Shell handles interactive mode for emotiva-cli.
type Shell struct {
	client *emotiva.Client
	host   string
	rl     *readline.Instance
}

// New creates a new interactive shell around client.
func New(client *emotiva.Client, host string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "emotiva> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{
		client: client,
		host:   host,
		rl:     rl,
	}, nil
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "discover":
			s.cmdDiscover(ctx)

		case "connect":
			s.cmdConnect(ctx)

		case "disconnect":
			s.cmdDisconnect(ctx)

		case "cmd", "c":
			s.cmdSend(ctx, args)

		case "get", "g":
			s.cmdGet(ctx, args)

		case "sub":
			s.cmdSubscribe(ctx, args)

		case "unsub":
			s.cmdUnsubscribe(ctx, args)

		case "watch", "w":
			s.cmdWatch(args)

		case "vol":
			s.cmdVolume(ctx, args)

		case "power":
			s.cmdPower(ctx, args)

		case "input":
			s.cmdInput(ctx, args)

		case "status":
			s.cmdStatus(ctx)

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Emotiva Receiver Commands:
  Connection:
    discover           - Browse the network for receivers (mDNS)
    connect            - Discover the receiver and connect
    disconnect         - Tear the connection down
    status             - Show connection and receiver status

  Control:
    cmd <name> [value] - Send a raw command (e.g. cmd power_on, cmd set_volume -40)
    power on|off       - Main zone power
    vol <db>|up|down   - Set or step the main zone volume
    input <source>     - Select an input source (e.g. hdmi1, optical1)

  Properties:
    get <prop> [...]   - Poll property values (e.g. get power volume)
    sub <prop> [...]   - Subscribe to property change notifications
    unsub <prop> [...] - Remove subscriptions
    watch <prop>       - Print a property's updates as they arrive

  General:
    help               - Show this help
    quit               - Exit`)
}

func (s *Shell) cmdDiscover(ctx context.Context) {
	browseCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	receivers, err := discovery.Browse(browseCtx, discovery.BrowserConfig{})
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Browse failed: %v\n", err)
		return
	}

	fmt.Fprintln(s.rl.Stdout(), "Browsing for receivers (5s)...")
	found := 0
	for r := range receivers {
		found++
		fmt.Fprintf(s.rl.Stdout(), "  %s", r.InstanceName)
		if r.Model != "" {
			fmt.Fprintf(s.rl.Stdout(), " (%s)", r.Model)
		}
		if len(r.Addresses) > 0 {
			fmt.Fprintf(s.rl.Stdout(), " at %s", r.Addresses[0])
		}
		fmt.Fprintln(s.rl.Stdout())
	}
	if found == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No receivers found")
	}
}

func (s *Shell) cmdConnect(ctx context.Context) {
	if s.client.State() == emotiva.StateConnected {
		fmt.Fprintln(s.rl.Stdout(), "Already connected")
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "Discovering %s...\n", s.host)
	if err := s.client.Connect(ctx); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Connect failed: %v\n", err)
		return
	}

	t := s.client.Transponder()
	fmt.Fprintf(s.rl.Stdout(), "Connected to %s (%s), protocol %s\n",
		t.Name, t.Model, t.Version)
}

func (s *Shell) cmdDisconnect(ctx context.Context) {
	if s.client.State() != emotiva.StateConnected {
		fmt.Fprintln(s.rl.Stdout(), "Not connected")
		return
	}
	if err := s.client.Disconnect(ctx); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Disconnect failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "Disconnected")
}

func (s *Shell) cmdSend(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: cmd <name> [value]")
		fmt.Fprintln(s.rl.Stdout(), "  Example: cmd power_on")
		fmt.Fprintln(s.rl.Stdout(), "  Example: cmd set_volume -40")
		return
	}

	name := args[0]
	var err error
	if len(args) > 1 {
		err = s.client.SendCommand(ctx, name, valueAttr(args[1]))
	} else {
		err = s.client.SendCommand(ctx, name)
	}
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Command failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "OK")
}

func (s *Shell) cmdGet(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: get <property> [property...]")
		fmt.Fprintln(s.rl.Stdout(), "  Example: get power volume input")
		return
	}

	values, err := s.client.RequestProperties(ctx, args, 0)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Poll failed: %v\n", err)
		return
	}

	for _, name := range args {
		if value, ok := values[name]; ok {
			fmt.Fprintf(s.rl.Stdout(), "  %s = %s\n", name, value)
		} else {
			fmt.Fprintf(s.rl.Stdout(), "  %s = (no answer)\n", name)
		}
	}
}

func (s *Shell) cmdSubscribe(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: sub <property> [property...]")
		return
	}

	statuses, err := s.client.Subscribe(ctx, args)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Subscribe failed: %v\n", err)
		return
	}
	if len(statuses) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No confirmation from device (subscription may still be active)")
		return
	}

	for _, name := range args {
		status, ok := statuses[name]
		if !ok {
			fmt.Fprintf(s.rl.Stdout(), "  %s: not confirmed\n", name)
			continue
		}
		fmt.Fprintf(s.rl.Stdout(), "  %s: ok", name)
		if status.Value != "" {
			fmt.Fprintf(s.rl.Stdout(), " (current: %s)", status.Value)
		}
		fmt.Fprintln(s.rl.Stdout())
	}
}

func (s *Shell) cmdUnsubscribe(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: unsub <property> [property...]")
		return
	}

	if _, err := s.client.Unsubscribe(ctx, args); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Unsubscribe failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "OK")
}

func (s *Shell) cmdWatch(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: watch <property>")
		fmt.Fprintln(s.rl.Stdout(), "  Updates print as they arrive; 'sub' the property first.")
		return
	}

	property := args[0]
	s.client.On(property, func(_ context.Context, name, value string) {
		fmt.Fprintf(s.rl.Stdout(), "\n[%s] %s = %s\n",
			time.Now().Format("15:04:05"), name, value)
		s.rl.Refresh()
	})
	fmt.Fprintf(s.rl.Stdout(), "Watching %s\n", property)
}

func (s *Shell) cmdVolume(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: vol <db>|up|down")
		fmt.Fprintln(s.rl.Stdout(), "  Example: vol -35")
		return
	}

	var err error
	switch args[0] {
	case "up":
		err = s.client.VolumeUp(ctx)
	case "down":
		err = s.client.VolumeDown(ctx)
	default:
		db, parseErr := strconv.Atoi(args[0])
		if parseErr != nil {
			fmt.Fprintf(s.rl.Stdout(), "Invalid volume: %v\n", parseErr)
			return
		}
		err = s.client.SetVolume(ctx, db)
	}
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Volume change failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "OK")
}

func (s *Shell) cmdPower(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: power on|off")
		return
	}

	var err error
	switch args[0] {
	case "on":
		err = s.client.PowerOn(ctx)
	case "off":
		err = s.client.PowerOff(ctx)
	default:
		fmt.Fprintln(s.rl.Stdout(), "Usage: power on|off")
		return
	}
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Power command failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "OK")
}

func (s *Shell) cmdInput(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: input <source>")
		fmt.Fprintln(s.rl.Stdout(), "  Example: input hdmi1")
		return
	}

	if err := s.client.SetInput(ctx, args[0]); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Input change failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "OK")
}

func (s *Shell) cmdStatus(ctx context.Context) {
	fmt.Fprintln(s.rl.Stdout(), "\nConnection Status")
	fmt.Fprintln(s.rl.Stdout(), "-------------------------------------------")
	fmt.Fprintf(s.rl.Stdout(), "  Host:       %s\n", s.host)
	fmt.Fprintf(s.rl.Stdout(), "  State:      %s\n", s.client.State())

	if s.client.State() != emotiva.StateConnected {
		fmt.Fprintln(s.rl.Stdout())
		return
	}

	t := s.client.Transponder()
	fmt.Fprintf(s.rl.Stdout(), "  Device:     %s (%s)\n", t.Name, t.Model)
	fmt.Fprintf(s.rl.Stdout(), "  Protocol:   %s\n", t.Version)
	if ka := s.client.LastKeepalive(); !ka.IsZero() {
		fmt.Fprintf(s.rl.Stdout(), "  Keepalive:  %s ago\n", time.Since(ka).Round(time.Second))
	}

	values, err := s.client.Status(ctx)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "  Poll failed: %v\n", err)
	} else {
		for name, value := range values {
			fmt.Fprintf(s.rl.Stdout(), "  %-14s %s\n", name+":", value)
		}
	}

	fmt.Fprintln(s.rl.Stdout())
}
