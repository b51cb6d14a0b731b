package scheduler

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bohm/binstretch/internal/config"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/metrics"
	"github.com/bohm/binstretch/pkg/net"
)

// Run executes the whole computation in the queen role and returns the
// game value of the empty configuration: Adv proves the lower bound,
// Alg refutes it. In local mode the overseers run as goroutines of
// this process; in ws mode remote overseer processes dial in first.
// The returned DAG holds the finished proof when the adversary wins.
func Run(cfg *config.Config, meters *metrics.Engine) (game.Victory, *Queen, error) {
	z := game.NewTables(cfg.Game.Params())
	rootBC := game.NewBinConf(z)

	switch cfg.Net.Mode {
	case "local":
		l := net.NewLocalComm(cfg.Scheduler.Overseers)

		var group errgroup.Group
		for i := 0; i < cfg.Scheduler.Overseers; i++ {
			o, err := NewOverseer(i, cfg, z, l.Overseer(i))
			if err != nil {
				return game.Uncertain, nil, err
			}
			group.Go(o.Run)
		}

		q, err := NewQueen(cfg, z, l.Queen(), meters)
		if err != nil {
			return game.Uncertain, nil, err
		}
		vic, err := q.Solve(rootBC)
		if werr := group.Wait(); werr != nil && err == nil {
			err = werr
		}
		return vic, q, err

	case "ws":
		wsq, err := net.ListenWSQueen(cfg.Net.Listen, cfg.Scheduler.Overseers)
		if err != nil {
			return game.Uncertain, nil, err
		}
		defer wsq.Close()

		q, err := NewQueen(cfg, z, wsq, meters)
		if err != nil {
			return game.Uncertain, nil, err
		}
		vic, err := q.Solve(rootBC)
		return vic, q, err

	default:
		return game.Uncertain, nil, fmt.Errorf("scheduler: unknown net mode %q", cfg.Net.Mode)
	}
}

// RunOverseer executes the overseer role of a distributed run: dial
// the queen and serve rounds until finality.
func RunOverseer(cfg *config.Config) error {
	if cfg.Net.Mode != "ws" {
		return fmt.Errorf("scheduler: overseer role requires ws mode, have %q", cfg.Net.Mode)
	}
	if cfg.Net.QueenURL == "" {
		return fmt.Errorf("scheduler: overseer role requires net.queen_url")
	}
	z := game.NewTables(cfg.Game.Params())

	conn, err := net.DialWSOverseer(cfg.Net.QueenURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	o, err := NewOverseer(0, cfg, z, conn)
	if err != nil {
		return err
	}
	return o.Run()
}
