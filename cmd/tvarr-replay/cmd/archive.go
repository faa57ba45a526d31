package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/tvarr-replay/internal/controlapi"
	"github.com/jmylchreest/tvarr-replay/internal/observability"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
)

var archiveCodec string

var archiveCmd = &cobra.Command{
	Use:   "archive <dir>",
	Short: "Recompress a finalized recording's segments to a denser codec",
	Long: `Archive reads header.json at dir, then decodes and re-encodes every
segment file from its recorded codec to --codec (xz+json by default,
which trades decode speed for a smaller footprint than brotli+json),
writing header.json's codec field last. Each segment file is replaced
in place as soon as it is re-encoded, so an archive that stops part-way
leaves some segments in the new codec while header.json still names the
original one; those segments then fail to decode.

Only run this against a recording that is no longer being written to;
archive does not coordinate with an active Recorder.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringVar(&archiveCodec, "codec", "xz+json", "target codec: json, brotli+json, xz+json")
}

func runArchive(cmd *cobra.Command, args []string) error {
	dir := args[0]
	logger := observability.LoggerFromContext(cmd.Context())

	headers := replay.NewHeaderStore(dir)
	meta, err := headers.ReadMeta()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	if meta.Codec == archiveCodec {
		logger.Info("recording already at target codec, nothing to do", slog.String("codec", archiveCodec))
		return nil
	}

	srcCodec := replay.CodecByName[controlapi.Payload](meta.Codec)
	dstCodec := replay.CodecByName[controlapi.Payload](archiveCodec)

	srcStore := replay.NewSegmentStore[controlapi.Payload](dir, srcCodec)
	dstStore := replay.NewSegmentStore[controlapi.Payload](dir, dstCodec)

	lastSegment := replay.SegmentIndex(meta.TotalTicks, meta.SegmentSize)
	converted := 0
	for idx := int64(0); idx <= lastSegment; idx++ {
		seg, err := srcStore.LoadSegment(idx)
		if err != nil {
			if errors.Is(err, replay.ErrNotFound) {
				continue
			}
			return fmt.Errorf("loading segment %d: %w", idx, err)
		}
		if err := dstStore.WriteSegment(idx, seg.Data); err != nil {
			return fmt.Errorf("writing segment %d: %w", idx, err)
		}
		converted++
	}

	meta.Codec = archiveCodec
	if err := headers.WriteMeta(meta); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}

	logger.Info("archive complete",
		slog.String("dir", dir),
		slog.Int("segments", converted),
		slog.String("codec", archiveCodec),
	)
	return nil
}
