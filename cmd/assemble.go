package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var assembleOut string

var assembleCmd = &cobra.Command{
	Use:   "assemble <session-id>",
	Short: "Assemble a session's application packet to a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		packet, docs, err := env.submitter.Packet(ctx, args[0])
		if err != nil {
			return err
		}

		if err := os.WriteFile(assembleOut, packet, 0o644); err != nil {
			return eris.Wrap(err, "write packet")
		}
		zap.L().Info("packet assembled",
			zap.String("session_id", args[0]),
			zap.String("out", assembleOut),
			zap.Int("documents", docs),
			zap.Int("bytes", len(packet)),
		)
		return nil
	},
}

func init() {
	assembleCmd.Flags().StringVar(&assembleOut, "out", "application.pdf", "output file path")
	rootCmd.AddCommand(assembleCmd)
}
