package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	enrollInterval int
	enrollMax      int
	stopRecipient  string
	stopReason     string
	historyLimit   int
	runDry         bool
)

func init() {
	enrollCmd.Flags().IntVar(&enrollInterval, "interval-days", 0, "days between reminders (0 = configured default)")
	enrollCmd.Flags().IntVar(&enrollMax, "max-reminders", 0, "reminder cap (0 = configured default)")
	stopCmd.Flags().StringVar(&stopRecipient, "recipient", "", "suppress a single recipient instead of the whole document")
	stopCmd.Flags().StringVar(&stopReason, "reason", "", "why reminders are being stopped")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of events to show")
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "evaluate and record without calling the provider")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <document-id>",
	Short: "Track a document for recurring reminders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		sub, err := e.uc.Enroll(cmd.Context(), args[0], enrollInterval, enrollMax)
		if err != nil {
			return err
		}
		fmt.Printf("enrolled %s: every %d days, up to %d reminders\n",
			sub.DocumentID, sub.IntervalDays, sub.MaxReminders)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <document-id>",
	Short: "Suppress reminders for a document or one recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.uc.Stop(cmd.Context(), args[0], stopRecipient, stopReason); err != nil {
			return err
		}
		if stopRecipient != "" {
			fmt.Printf("suppressed recipient %s on %s\n", stopRecipient, args[0])
		} else {
			fmt.Printf("stopped reminders for %s\n", args[0])
		}
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <document-id>",
	Short: "Clear suppressions and re-enable reminders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		sub, err := e.uc.Resume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("resumed %s: every %d days, up to %d reminders\n",
			sub.DocumentID, sub.IntervalDays, sub.MaxReminders)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show store state merged with a live provider snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		st, err := e.uc.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(st)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <document-id>",
	Short: "Show dispatch attempts, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		events, err := e.uc.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		return printJSON(events)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reminder cycle now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		rep, err := e.uc.RunOnce(cmd.Context(), runDry)
		if err != nil {
			return err
		}
		return printJSON(rep)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize provider health and tracking coverage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		rep, err := e.uc.Report(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(rep)
	},
}
