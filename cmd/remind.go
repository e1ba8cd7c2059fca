package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/reminder"
)

var remindOnce bool

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Scan for stalled applications and send reminder emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sched := reminder.New(env.syn.Store(), env.mail, cfg.Reminder, cfg.Mail, env.wizard.FinalStep())

		if remindOnce {
			stats, err := sched.RunOnce(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("reminder scan complete",
				zap.Int("scanned", stats.Scanned),
				zap.Int("reminded", stats.Reminded),
				zap.Int("alerted", stats.Alerted),
			)
			return nil
		}

		interval := time.Duration(cfg.Reminder.IntervalMins) * time.Minute
		if interval <= 0 {
			interval = time.Hour
		}
		zap.L().Info("reminder scheduler running", zap.Duration("interval", interval))
		return sched.Run(ctx, interval)
	},
}

func init() {
	remindCmd.Flags().BoolVar(&remindOnce, "once", false, "run a single scan and exit")
	rootCmd.AddCommand(remindCmd)
}
