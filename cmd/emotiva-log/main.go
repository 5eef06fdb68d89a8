// Command emotiva-log views and analyzes protocol log files.
//
// Log files are created by emotiva-cli's -protocol-log flag or by any
// application that wires a FileLogger into the client.
//
// Usage:
//
//	emotiva-log <command> [flags] <file.elog>
//
// Commands:
//
//	view     View log file in human-readable format
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	emotiva-log view session.elog
//
//	# View only incoming notify-port traffic
//	emotiva-log view -direction in -role notifyPort session.elog
//
//	# Show statistics
//	emotiva-log stats session.elog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/log"
)

const usage = `emotiva-log - Protocol Log Analyzer

Usage:
  emotiva-log <command> [flags] <file.elog>

Commands:
  view     View log file in human-readable format
  stats    Show statistics about the log file

Use "emotiva-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	layer := fs.String("layer", "", "Filter by layer (transport, wire, protocol)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	role := fs.String("role", "", "Filter by port role (controlPort, notifyPort, infoPort, setupPort)")
	connID := fs.String("conn-id", "", "Filter by connection ID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		os.Exit(1)
	}

	filter, err := buildFilter(*layer, *direction, *category, *role, *connID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	reader, err := log.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		printEvent(event)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		os.Exit(1)
	}

	reader, err := log.NewReader(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	if len(events) == 0 {
		fmt.Println("Empty log file")
		return
	}

	byCategory := make(map[string]int)
	byRootTag := make(map[string]int)
	connIDs := make(map[string]bool)
	errorCount := 0

	for _, e := range events {
		byCategory[e.Category.String()]++
		if e.Message != nil {
			byRootTag[e.Message.RootTag]++
		}
		if e.Category == log.CategoryError {
			errorCount++
		}
		if e.ConnectionID != "" {
			connIDs[e.ConnectionID] = true
		}
	}

	first := events[0].Timestamp
	last := events[len(events)-1].Timestamp

	fmt.Printf("Events:      %d\n", len(events))
	fmt.Printf("Connections: %d\n", len(connIDs))
	fmt.Printf("Time span:   %s to %s (%s)\n",
		first.Format("15:04:05.000"), last.Format("15:04:05.000"),
		last.Sub(first).Round(time.Millisecond))
	fmt.Printf("Errors:      %d\n", errorCount)

	fmt.Println("\nBy category:")
	printCounts(byCategory)

	if len(byRootTag) > 0 {
		fmt.Println("\nBy message root:")
		printCounts(byRootTag)
	}
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-24s %d\n", k, counts[k])
	}
}

func buildFilter(layer, direction, category, role, connID string) (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: connID,
		PortRole:     role,
	}

	switch strings.ToLower(layer) {
	case "":
	case "transport":
		l := log.LayerTransport
		filter.Layer = &l
	case "wire":
		l := log.LayerWire
		filter.Layer = &l
	case "protocol":
		l := log.LayerProtocol
		filter.Layer = &l
	default:
		return log.Filter{}, fmt.Errorf("unknown layer %q", layer)
	}

	switch strings.ToLower(direction) {
	case "":
	case "in":
		d := log.DirectionIn
		filter.Direction = &d
	case "out":
		d := log.DirectionOut
		filter.Direction = &d
	default:
		return log.Filter{}, fmt.Errorf("unknown direction %q", direction)
	}

	switch strings.ToLower(category) {
	case "":
	case "message":
		c := log.CategoryMessage
		filter.Category = &c
	case "state":
		c := log.CategoryState
		filter.Category = &c
	case "error":
		c := log.CategoryError
		filter.Category = &c
	default:
		return log.Filter{}, fmt.Errorf("unknown category %q", category)
	}

	return filter, nil
}

func printEvent(e log.Event) {
	ts := e.Timestamp.Format("15:04:05.000")
	conn := e.ConnectionID
	if len(conn) > 8 {
		conn = conn[:8]
	}

	prefix := fmt.Sprintf("%s [%s] %-3s %-9s", ts, conn, e.Direction, e.Layer)

	switch {
	case e.Message != nil:
		m := e.Message
		fmt.Printf("%s %s", prefix, m.RootTag)
		if m.Command != "" {
			fmt.Printf(" command=%s", m.Command)
		}
		if len(m.Properties) > 0 {
			fmt.Printf(" properties=%s", strings.Join(m.Properties, ","))
		}
		if m.Sequence != "" {
			fmt.Printf(" seq=%s", m.Sequence)
		}
		if e.PortRole != "" {
			fmt.Printf(" role=%s", e.PortRole)
		}
		if m.Size > 0 {
			fmt.Printf(" (%dB)", m.Size)
		}
		fmt.Println()

	case e.StateChange != nil:
		s := e.StateChange
		fmt.Printf("%s state %s -> %s", prefix, s.OldState, s.NewState)
		if s.Reason != "" {
			fmt.Printf(" (%s)", s.Reason)
		}
		fmt.Println()

	case e.Error != nil:
		fmt.Printf("%s ERROR %s", prefix, e.Error.Message)
		if e.Error.Context != "" {
			fmt.Printf(" [%s]", e.Error.Context)
		}
		fmt.Println()

	default:
		fmt.Printf("%s %s\n", prefix, e.Category)
	}
}
