package cmd

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Tk21111/drawsync/canvas"
	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/internal/logx"
	"github.com/Tk21111/drawsync/middleware"
	"github.com/Tk21111/drawsync/ws"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type bombOptions struct {
	url      string
	clients  int
	rate     int
	duration time.Duration
	width    float64
	height   float64
}

func bombCmd() *cobra.Command {
	opts := bombOptions{}

	cmd := &cobra.Command{
		Use:   "bomb",
		Short: "Connect simulated drawing clients to a hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.Init(config.Load().Env)
			defer logx.Sync()

			report, err := runBomb(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "clients=%d sent=%d received=%d rendered=%d\n",
				opts.clients, report.sent, report.received, report.rendered)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "ws://localhost:8080/ws", "ws url")
	f.IntVar(&opts.clients, "clients", 5, "simulated clients")
	f.IntVar(&opts.rate, "rate", 200, "pointer moves per second per client")
	f.DurationVar(&opts.duration, "duration", 10*time.Second, "how long to draw")
	f.Float64Var(&opts.width, "width", 1280, "viewport width of every client")
	f.Float64Var(&opts.height, "height", 720, "viewport height of every client")

	return cmd
}

type bombReport struct {
	sent     int
	received int
	rendered int
}

func (r *bombReport) add(o bombReport) {
	r.sent += o.sent
	r.received += o.received
	r.rendered += o.rendered
}

// tally is a Surface that only counts lines.
type tally struct {
	lines int
}

func (t *tally) DrawLine(_, _, _, _ float64, _ string) {
	t.lines++
}

func runBomb(ctx context.Context, opts bombOptions) (bombReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.rate <= 0 {
		return bombReport{}, fmt.Errorf("rate must be positive")
	}

	conns := make([]*ws.Conn, 0, opts.clients)
	for i := range opts.clients {
		c, err := ws.Dial(ctx, opts.url)
		if err != nil {
			for _, c := range conns {
				c.Close()
			}
			return bombReport{}, fmt.Errorf("dial client %d: %w", i, err)
		}
		conns = append(conns, c)
	}
	logx.L.Info("bomb_connected", zap.String("url", opts.url), zap.Int("clients", len(conns)))

	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	var (
		mu    sync.Mutex
		total bombReport
		wg    sync.WaitGroup
	)
	for i, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := runBot(ctx, i, c, opts)
			mu.Lock()
			total.add(r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	logx.L.Info("bomb_finished",
		zap.Int("sent", total.sent),
		zap.Int("received", total.received),
		zap.Int("rendered", total.rendered),
	)
	return total, nil
}

// runBot drives one simulated client. Board, pointer input and inbound
// events all stay on this goroutine.
func runBot(ctx context.Context, id int, c *ws.Conn, opts bombOptions) bombReport {
	defer c.Close()

	var report bombReport
	surface := &tally{}
	tx := canvas.TransmitFunc(func(e config.DrawEvent) error {
		report.sent++
		return c.Send(e)
	})

	vp := canvas.Viewport{W: opts.width, H: opts.height}
	board := canvas.NewBoard(surface, tx, vp)
	board.SetColor(middleware.ColorFromID(fmt.Sprintf("bot-%d", id)))

	inbound := make(chan config.DrawEvent, 256)
	go func() {
		defer close(inbound)
		for e := range c.Receive() {
			select {
			case inbound <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(id)))
	x, y := rng.Float64()*vp.W, rng.Float64()*vp.H

	ticker := time.NewTicker(time.Second / time.Duration(opts.rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			board.PointerUp(x, y)
			report.rendered = surface.lines
			return report

		case e, ok := <-inbound:
			if !ok {
				report.rendered = surface.lines
				return report
			}
			report.received++
			board.Apply(e)

		case <-ticker.C:
			if !board.Drawing() {
				board.PointerDown(x, y)
				continue
			}

			x = min(max(x+(rng.Float64()-0.5)*40, 0), vp.W)
			y = min(max(y+(rng.Float64()-0.5)*40, 0), vp.H)

			// lift the pen now and then so strokes end
			if rng.IntN(50) == 0 {
				board.PointerUp(x, y)
				continue
			}
			board.PointerMove(x, y)
		}
	}
}
