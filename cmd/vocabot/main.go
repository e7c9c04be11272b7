package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"vocabot/internal/app"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "vocabot",
	Short:         "Vocabulary bot with daily review reminders",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("vocabot %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.PersistentFlags().String("config", "./config.yaml", "path to config file (json or yaml)")

	reconcileCmd.Flags().Bool("dry-run", true, "print the plan without installing anything")

	rootCmd.AddCommand(runCmd, reconcileCmd, versionCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot and the reminder scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)

		a, err := app.NewApp(cfgPath)
		if err != nil {
			return err
		}
		if err := a.Start(context.Background()); err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.Stop(stopCtx, app.StopFatalError)
			return err
		}

		reason := app.StopAppStop
		select {
		case sig := <-sigs:
			reason = app.StopSIGINT
			if sig == syscall.SIGTERM {
				reason = app.StopSIGTERM
			}
		case <-a.Done():
			reason = app.StopFatalError
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Stop(stopCtx, reason); err != nil {
			return err
		}
		if reason == app.StopFatalError {
			if err := a.Err(); err != nil {
				return err
			}
			return errors.New("app stopped unexpectedly")
		}
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Show the reminder jobs startup reconciliation would install",
	Long: `Reads every user with reminders enabled from storage and prints the
job each one would get. Users with a malformed reminder time are listed as
skipped. Nothing is scheduled and Telegram is not contacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		dry, _ := cmd.Flags().GetBool("dry-run")
		if !dry {
			return errors.New("reconcile runs on every start; only --dry-run is supported here")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		p, err := app.PlanReminders(ctx, cfgPath)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tJOB\tTIME\tTIMEZONE\tACTION")
		for _, h := range p.Install {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\tinstall\n", h.UserID, h.JobID, h.Clock(), h.Timezone)
		}
		for _, s := range p.Skip {
			fmt.Fprintf(w, "%d\t-\t%q\t-\tskip: %v\n", s.UserID, s.ReminderTime, s.Err)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d to install, %d skipped\n", len(p.Install), len(p.Skip))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vocabot %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	},
}
