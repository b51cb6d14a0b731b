// Command binstretch computes lower and upper bounds for the online
// bin stretching problem by parallel minimax search.
//
// Exit codes: 0 when the adversary wins (a lower bound is proven),
// 1 when the algorithm wins, 2 on user error.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bohm/binstretch/internal/config"
	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/logging"
	"github.com/bohm/binstretch/pkg/metrics"
	"github.com/bohm/binstretch/pkg/scheduler"
)

var version = "dev"

const (
	exitLowerBound = 0
	exitAlgWins    = 1
	exitUserError  = 2
	exitInternal   = 3
)

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "binstretch",
		Short: "Online bin stretching bounds by parallel minimax search",
		Long: `binstretch plays the online bin stretching game between an
adversary sending items and an algorithm packing them into stretched
bins, proving either that the adversary forces an overload (a lower
bound for the problem) or that the algorithm survives every sequence.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	rootCmd.AddCommand(searchCmd(&cfgFile))
	rootCmd.AddCommand(overseerCmd(&cfgFile))
	rootCmd.AddCommand(verifyDagCmd(&cfgFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUserError)
	}
}

func loadConfig(cfgFile string, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("bins") {
		cfg.Game.Bins, _ = cmd.Flags().GetInt("bins")
	}
	if cmd.Flags().Changed("stretched") {
		cfg.Game.R, _ = cmd.Flags().GetInt("stretched")
	}
	if cmd.Flags().Changed("optimal") {
		cfg.Game.S, _ = cmd.Flags().GetInt("optimal")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Scheduler.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func searchCmd(cfgFile *string) *cobra.Command {
	var savePath string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the minimax search for the configured game",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgFile, cmd)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(exitUserError)
			}
			logging.Setup(cfg.Logging)

			meters := metrics.NewEngine()
			if cfg.Metrics.Enabled {
				srv := metrics.NewServer(cfg.Metrics.Listen, meters)
				srv.Start()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(ctx)
				}()
			}

			started := time.Now()
			vic, queen, err := scheduler.Run(cfg, meters)
			if err != nil {
				log.Error().Err(err).Msg("Search failed")
				os.Exit(exitInternal)
			}
			elapsed := time.Since(started)

			switch vic {
			case game.Adv:
				color.Green("Lower bound holds: adversary forces load %d against optimum %d on %d bins (%.2fs)",
					cfg.Game.R, cfg.Game.S, cfg.Game.Bins, elapsed.Seconds())
				if savePath != "" {
					if err := queen.Dag.SaveFile(savePath, cfg.Search.InitialSequence); err != nil {
						log.Error().Err(err).Msg("Saving proof graph failed")
						os.Exit(exitInternal)
					}
					log.Info().Str("path", savePath).Msg("Proof graph saved")
				}
				os.Exit(exitLowerBound)
			case game.Alg:
				color.Yellow("Algorithm wins: no lower bound at %d/%d on %d bins (%.2fs)",
					cfg.Game.R, cfg.Game.S, cfg.Game.Bins, elapsed.Seconds())
				os.Exit(exitAlgWins)
			default:
				log.Error().Str("outcome", vic.String()).Msg("Search ended undecided")
				os.Exit(exitInternal)
			}
			return nil
		},
	}

	cmd.Flags().Int("bins", 0, "number of bins")
	cmd.Flags().Int("stretched", 0, "stretched bin capacity R")
	cmd.Flags().Int("optimal", 0, "optimal bin capacity S")
	cmd.Flags().Int("workers", 0, "worker threads per overseer")
	cmd.Flags().StringVar(&savePath, "save", "", "write the proof graph to this file on success")
	return cmd
}

func overseerCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "overseer",
		Short: "Join a distributed run as an overseer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgFile, cmd)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(exitUserError)
			}
			logging.Setup(cfg.Logging)
			if err := scheduler.RunOverseer(cfg); err != nil {
				log.Error().Err(err).Msg("Overseer failed")
				os.Exit(exitInternal)
			}
			return nil
		},
	}
}

func verifyDagCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-dag <file>",
		Short: "Check the structural consistency of a saved proof graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgFile, cmd)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(exitUserError)
			}
			logging.Setup(cfg.Logging)

			z := game.NewTables(cfg.Game.Params())
			res, err := dag.LoadFile(z, args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(exitUserError)
			}
			if res.Partial {
				root := game.NewBinConf(z)
				if err := res.PopulateFromRoot(root); err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(exitUserError)
				}
			}
			if err := res.Dag.CheckProof(); err != nil {
				color.Red("Proof graph inconsistent: %v", err)
				os.Exit(exitInternal)
			}
			color.Green("Proof graph consistent: %d adversary and %d algorithm vertices",
				res.Dag.NumAdvVertices(), res.Dag.NumAlgVertices())
			return nil
		},
	}
}
