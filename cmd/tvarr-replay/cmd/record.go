package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/tvarr-replay/internal/controlapi"
	"github.com/jmylchreest/tvarr-replay/internal/observability"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
)

var (
	recordTickRate    int
	recordSegmentSize int
	recordCodec       string
)

var recordCmd = &cobra.Command{
	Use:   "record <dir>",
	Short: "Record one JSON payload per stdin line into a new recording",
	Long: `Record reads newline-delimited JSON values from stdin and feeds each
one to a Recorder rooted at dir, one Record call per line. The tick for
each line is derived from wall-clock time elapsed since the recorder
started (just before stdin is first read), not from line order, so pacing stdin to roughly the desired tick rate
produces the most faithful recording.

Useful for scripted or manual testing without standing up the control
API server.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().IntVar(&recordTickRate, "tick-rate", replay.DefaultTickRate, "ticks per second")
	recordCmd.Flags().IntVar(&recordSegmentSize, "segment-size", replay.DefaultSegmentSize, "ticks per segment file")
	recordCmd.Flags().StringVar(&recordCodec, "codec", replay.DefaultCodec, "segment codec: json, brotli+json, xz+json")
}

func runRecord(cmd *cobra.Command, args []string) error {
	dir := args[0]
	logger := observability.LoggerFromContext(cmd.Context())

	opts := replay.Options{
		TickRate:    recordTickRate,
		SegmentSize: recordSegmentSize,
		Codec:       recordCodec,
	}
	rec := replay.NewRecorder[controlapi.Payload](dir, opts, logger)

	if err := rec.Start(); err != nil {
		return fmt.Errorf("starting recorder: %w", err)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			return fmt.Errorf("line %d: invalid json: %w", lines+1, err)
		}
		if err := rec.Record(raw); err != nil {
			return fmt.Errorf("line %d: %w", lines+1, err)
		}
		lines++
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading stdin: %w", err)
	}

	meta, err := rec.Stop()
	if err != nil {
		return fmt.Errorf("stopping recorder: %w", err)
	}

	logger.Info("recording complete",
		slog.String("dir", dir),
		slog.String("id", string(rec.ID())),
		slog.Int("lines", lines),
		slog.Int64("totalTicks", meta.TotalTicks),
		slog.Float64("totalDurationMs", meta.TotalDuration),
	)
	return nil
}
