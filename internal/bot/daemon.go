package bot

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// defaultTurnTimeout bounds the handling of one inbound message, covering
// the telemetry fan-out, the model call and the action dispatch.
const defaultTurnTimeout = 60 * time.Second

// Daemon is the main bot process. It connects to a chat platform via an
// Adapter and pumps inbound messages through the Router until the context
// is cancelled.
type Daemon struct {
	adapter     Adapter
	router      *Router
	turnTimeout time.Duration
	out         io.Writer
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Adapter     Adapter
	Router      *Router
	TurnTimeout time.Duration // defaults to 60s
	Out         io.Writer     // defaults to os.Stdout
}

// NewDaemon creates a Daemon.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: daemon: adapter is required")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("bot: daemon: router is required")
	}
	timeout := opts.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		adapter:     opts.Adapter,
		router:      opts.Router,
		turnTimeout: timeout,
		out:         out,
	}, nil
}

// Run connects the adapter and blocks pumping inbound messages until the
// context is cancelled or the adapter closes its channel. Each message is
// handled on its own goroutine; turns from the same user are serialized
// further down, in the pipeline.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Valet connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	// Some platforms only reveal the bot's own id after connecting.
	if bui, ok := d.adapter.(BotUserIDer); ok {
		if id := bui.BotUserID(); id != "" {
			d.router.SetBotUserID(id)
		}
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	fmt.Fprintf(d.out, "Valet online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Valet shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				fmt.Fprintf(d.out, "bot: close adapter: %v\n", err)
			}
			fmt.Fprintf(d.out, "Valet stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Valet inbound channel closed\n")
				return nil
			}
			go d.handle(ctx, msg)
		}
	}
}

func (d *Daemon) handle(ctx context.Context, msg InboundMessage) {
	turnCtx, cancel := context.WithTimeout(ctx, d.turnTimeout)
	defer cancel()
	d.router.Handle(turnCtx, msg)
}
