package typewriter

import (
	"context"
	"time"

	"prism/internal/logging"
	"prism/internal/task"
)

const revealKey = "reveal"

// Player runs reveals on a ticker. At most one reveal runs at a time; Play
// cancels the previous one before starting.
type Player struct {
	ctrl     *Controller
	interval time.Duration
	group    *task.Group
}

// NewPlayer creates a player. An interval of zero shows answers at once.
func NewPlayer(parent context.Context, interval time.Duration) *Player {
	return &Player{
		ctrl:     &Controller{},
		interval: interval,
		group:    task.NewGroup(parent),
	}
}

// Controller exposes the underlying controller.
func (p *Player) Controller() *Controller { return p.ctrl }

// Play reveals final into messageID, calling onFrame from the player
// goroutine for every tick. The last frame has Done set, unless the
// reveal was cancelled.
func (p *Player) Play(messageID, final string, onFrame func(Frame)) task.Handle {
	return p.group.Replace(revealKey, func(ctx context.Context) {
		gen := p.ctrl.Start(messageID, final)
		logging.Get(logging.CategoryTypewriter).Debugw("reveal started", "message", messageID, "gen", gen, "runes", Len(final))

		if p.interval <= 0 {
			if f, ok := p.ctrl.Complete(gen); ok {
				onFrame(f)
			}
			return
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.ctrl.CancelGen(gen)
				logging.Get(logging.CategoryTypewriter).Debugw("reveal cancelled", "message", messageID, "gen", gen)
				return
			case <-ticker.C:
			}
			f, ok := p.ctrl.Tick(gen)
			if !ok {
				return
			}
			onFrame(f)
			if f.Done {
				return
			}
		}
	})
}

// Cancel stops the running reveal.
func (p *Player) Cancel() { p.group.Cancel(revealKey) }

// Active returns the number of running reveals (0 or 1).
func (p *Player) Active() int { return p.group.Active() }

// Close stops any reveal and releases the player.
func (p *Player) Close() { p.group.Close() }
