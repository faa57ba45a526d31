package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/tvarr-replay/internal/controlapi"
	"github.com/jmylchreest/tvarr-replay/internal/observability"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
)

var replaySpeed float64

var replayCmd = &cobra.Command{
	Use:   "replay <dir>",
	Short: "Replay a recording to stdout",
	Long: `Replay drives a Replayer over the recording at dir and prints one line
per delivered tick to stdout, in the same wall-clock cadence a live
session would see. Playback runs until the recording ends or the
process receives an interrupt.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", replay.DefaultSpeed, "playback speed multiplier (0.1-10.0)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	dir := args[0]
	logger := observability.LoggerFromContext(cmd.Context())

	done := make(chan struct{})
	cb := replay.Callbacks[controlapi.Payload]{
		OnTick: func(data controlapi.Payload, meta replay.Meta) {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%d\t%s\n", meta.Tick, meta.TimeMs, string(data))
		},
		OnEnd: func() {
			close(done)
		},
	}

	opts := replay.Options{Speed: replay.ClampSpeed(replaySpeed)}
	player := replay.NewReplayer[controlapi.Payload](dir, opts, cb, logger)

	if err := player.Init(); err != nil {
		return fmt.Errorf("initializing replayer: %w", err)
	}
	if err := player.Play(); err != nil {
		return fmt.Errorf("starting playback: %w", err)
	}

	<-done
	return nil
}
