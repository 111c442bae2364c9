package main

import (
	"fmt"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"seedshelf/internal/media/analysis"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Probe a media file and report codec facts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if check {
				for _, binary := range []string{cfg.FFmpegBinary(), cfg.FFprobeBinary()} {
					path, err := exec.LookPath(binary)
					if err != nil {
						return fmt.Errorf("%s not found in PATH; install ffmpeg or set its path in config.toml", binary)
					}
					fmt.Fprintf(out, "%s: %s\n", binary, path)
				}
				if len(args) == 0 {
					return nil
				}
			}
			if len(args) == 0 {
				return fmt.Errorf("a file argument is required unless --check is given")
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			analyzer := analysis.NewAnalyzer(cfg, logger)
			facts, err := analyzer.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Video codec", facts.VideoCodec},
				{"Audio codec", facts.AudioCodec},
				{"Resolution", facts.Resolution},
				{"Duration (s)", strconv.FormatFloat(facts.Duration, 'f', 1, 64)},
				{"Plex compatible", yesNo(facts.PlexCompatible)},
				{"Needs conversion", yesNo(facts.NeedsConversion)},
			}
			fmt.Fprintln(out, renderTable([]string{"Property", "Value"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Verify that ffmpeg and ffprobe are available")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
