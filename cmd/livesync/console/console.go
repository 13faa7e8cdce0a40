// Package console provides the interactive command line for livesync.
package console

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/service"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

// Console handles interactive mode.
type Console struct {
	svc *service.Service
	rl  *readline.Instance

	// leaves holds the release function of every room joined here.
	leaves map[subscription.Room]func()

	// unwatch cancels the event trace, nil when tracing is off.
	unwatch []func()
}

// New creates a console bound to svc.
func New(svc *service.Service) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "livesync> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{
		svc:    svc,
		rl:     rl,
		leaves: make(map[subscription.Room]func()),
	}, nil
}

// Stdout returns a writer that coordinates with the prompt. Use it for log
// output.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done. cancel is called when
// the user exits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.leaveAll()
	defer c.stopTrace()

	cancelWatch := c.svc.OnConnectionStateChange(func(_, next connection.Snapshot) {
		c.printf("[connection] %s", next.State)
		if next.Err != nil {
			c.printf(" (%v)", next.Err)
		}
		c.println()
	})
	defer cancelWatch()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			c.println("Exiting...")
			cancel()
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "help", "h", "?":
			c.printHelp()
		case "state", "s":
			c.cmdState()
		case "cache", "c":
			c.cmdCache(args)
		case "join":
			c.cmdJoin(args)
		case "leave":
			c.cmdLeave(args)
		case "rooms":
			c.cmdRooms()
		case "subs":
			c.cmdSubs()
		case "trace":
			c.cmdTrace(args)
		case "reconnect":
			c.cmdReconnect(ctx)
		case "resync":
			c.cmdResync(ctx)
		case "quit", "exit", "q":
			c.println("Exiting...")
			cancel()
			return
		default:
			c.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	c.println(`Commands:
  state              Show connection and session state
  cache [domain]     List cache entries, optionally for one domain
  join <room>        Join a room ("alerts" or "devices:d-1")
  leave <room>       Leave a room joined here
  rooms              List rooms with interest
  subs               List event handlers per type
  trace on|off       Print every delivered event
  reconnect          Tear down and reconnect now
  resync             Refetch alerts and devices
  quit               Exit`)
}

func (c *Console) cmdState() {
	snap := c.svc.ConnectionState()
	c.printf("Connection: %s\n", snap.State)
	if snap.Err != nil {
		c.printf("Last error: %v\n", snap.Err)
	}
	c.printf("Sessions:   %d\n", c.svc.SessionCount())
	c.printf("Cache:      %d entries\n", c.svc.Cache().Len())
}

func (c *Console) cmdCache(args []string) {
	var domains []event.Domain
	if len(args) > 0 {
		domains = append(domains, event.Domain(args[0]))
	}
	keys := c.svc.Cache().Keys(domains...)
	if len(keys) == 0 {
		c.println("No cache entries.")
		return
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		e, ok := c.svc.Cache().Get(k)
		if !ok {
			continue
		}
		stale := ""
		if e.Stale {
			stale = " stale"
		}
		c.printf("  %-40s v%-4d %s%s\n", k, e.Version, e.UpdatedAt.Format(time.TimeOnly), stale)
	}
}

func (c *Console) cmdJoin(args []string) {
	room, ok := c.parseRoom(args)
	if !ok {
		return
	}
	if _, joined := c.leaves[room]; joined {
		c.printf("Already joined %s\n", room)
		return
	}
	c.leaves[room] = c.svc.JoinRoom(room)
	c.printf("Joined %s\n", room)
}

func (c *Console) cmdLeave(args []string) {
	room, ok := c.parseRoom(args)
	if !ok {
		return
	}
	leave, joined := c.leaves[room]
	if !joined {
		c.printf("Not joined: %s\n", room)
		return
	}
	leave()
	delete(c.leaves, room)
	c.printf("Left %s\n", room)
}

func (c *Console) cmdRooms() {
	rooms := c.svc.Rooms()
	active := rooms.Active()
	if len(active) == 0 {
		c.println("No rooms.")
		return
	}
	for _, r := range active {
		mark := "pending"
		if rooms.Subscribed(r) {
			mark = "subscribed"
		}
		c.printf("  %-24s interest=%d %s\n", r, rooms.Interest(r), mark)
	}
}

func (c *Console) cmdSubs() {
	reg := c.svc.Events()
	types := reg.Types()
	if len(types) == 0 {
		c.println("No handlers.")
		return
	}
	for _, t := range types {
		c.printf("  %-20s %d\n", t, reg.Len(t))
	}
}

func (c *Console) cmdTrace(args []string) {
	if len(args) == 0 {
		c.println("Usage: trace on|off")
		return
	}
	switch strings.ToLower(args[0]) {
	case "on":
		if c.unwatch != nil {
			return
		}
		for _, t := range event.Types() {
			c.unwatch = append(c.unwatch, c.svc.Subscribe(t, func(env event.Envelope) {
				c.printf("[event] %s %s\n", env.Type, event.EntityID(env.Data))
			}))
		}
		c.println("Tracing events.")
	case "off":
		c.stopTrace()
		c.println("Tracing stopped.")
	default:
		c.println("Usage: trace on|off")
	}
}

func (c *Console) stopTrace() {
	for _, cancel := range c.unwatch {
		cancel()
	}
	c.unwatch = nil
}

func (c *Console) cmdReconnect(ctx context.Context) {
	if err := c.svc.Reconnect(ctx); err != nil {
		c.printf("Reconnect failed: %v\n", err)
		return
	}
	c.println("Reconnecting...")
}

func (c *Console) cmdResync(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.svc.Resync(ctx); err != nil {
		c.printf("Resync failed: %v\n", err)
		return
	}
	c.println("Resync complete.")
}

func (c *Console) leaveAll() {
	for room, leave := range c.leaves {
		leave()
		delete(c.leaves, room)
	}
}

func (c *Console) parseRoom(args []string) (subscription.Room, bool) {
	if len(args) == 0 {
		c.println("Usage: join|leave <domain>[:<id>]")
		return subscription.Room{}, false
	}
	room, err := ParseRoom(args[0])
	if err != nil {
		c.printf("%v\n", err)
		return subscription.Room{}, false
	}
	return room, true
}

// ParseRoom parses "alerts" or "devices:d-1".
func ParseRoom(s string) (subscription.Room, error) {
	domain, id, _ := strings.Cut(s, ":")
	d := event.Domain(strings.ToLower(domain))
	switch d {
	case event.DomainAlerts, event.DomainDevices, event.DomainAnalytics:
	default:
		return subscription.Room{}, fmt.Errorf("unknown domain: %q", domain)
	}
	return subscription.Room{Domain: d, EntityID: id}, nil
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.rl.Stdout(), format, args...)
}

func (c *Console) println(args ...any) {
	fmt.Fprintln(c.rl.Stdout(), args...)
}
