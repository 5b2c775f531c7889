package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
)

func listCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List appointments in time order",
		RunE: withConsole(open, func(ctx context.Context, c *console, cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			doctor, _ := cmd.Flags().GetString("doctor")
			list := appointment.FilterList(c.svc.Snapshot().Appointments, appointment.ListQuery{
				Search:   search,
				DoctorID: appointment.ID(doctor),
			})
			if asJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), list)
			}

			flagged := appointment.ConflictingIDs(c.svc.Conflicts())
			w := table(cmd.OutOrStdout(), "ID", "WHEN", "STATUS", "DOCTOR", "PATIENT", "CLINIC", "CLASH")
			for _, a := range list {
				clash := ""
				if flagged[a.ID] {
					clash = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.AppointmentDateTime, a.Status, a.DoctorName, a.PatientName, a.ClinicName, clash)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().String("search", "", "Match patient, doctor, clinic or reason")
	cmd.Flags().String("doctor", "", "Only this doctor id")
	return cmd
}

func conflictsCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Show double-booked appointment pairs",
		RunE: withConsole(open, func(ctx context.Context, c *console, cmd *cobra.Command, args []string) error {
			report := c.svc.ConflictReport()
			if asJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), report)
			}
			if len(report.Pairs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No conflicts among %d appointments.\n", report.Appointments)
				return nil
			}

			w := table(cmd.OutOrStdout(), "DOCTOR", "FIRST", "AT", "SECOND", "AT", "GAP")
			for _, p := range report.Pairs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.First.DoctorID, p.First.ID, p.First.AppointmentDateTime,
					p.Second.ID, p.Second.AppointmentDateTime, p.Gap)
			}
			return w.Flush()
		}),
	}
}

func revenueCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "revenue",
		Short: "Summarize revenue from completed appointments",
		RunE: withConsole(open, func(ctx context.Context, c *console, cmd *cobra.Command, args []string) error {
			sum := c.svc.Revenue()
			if asJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			w := table(cmd.OutOrStdout(), "TOTAL", "TODAY", "THIS WEEK", "THIS MONTH")
			fmt.Fprintf(w, "%.2f\t%.2f\t%.2f\t%.2f\n", sum.Total, sum.Today, sum.ThisWeek, sum.ThisMonth)
			return w.Flush()
		}),
	}
}

func rescheduleCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reschedule <appointment-id>",
		Short: "Move an appointment, refusing slots that clash with the doctor's schedule",
		Args:  cobra.ExactArgs(1),
		RunE: withConsole(open, func(ctx context.Context, c *console, cmd *cobra.Command, args []string) error {
			id := appointment.ID(args[0])
			at, _ := cmd.Flags().GetString("at")
			date, _ := cmd.Flags().GetString("date")
			clock, _ := cmd.Flags().GetString("time")

			var err error
			switch {
			case at != "":
				target, perr := appointment.ParseDateTime(at)
				if perr != nil {
					return fmt.Errorf("--at %q: %w", at, perr)
				}
				err = c.svc.Reschedule(ctx, appointment.RescheduleRequest{AppointmentID: id, NewDateTime: target})
			case date != "" || clock != "":
				err = c.svc.RescheduleManual(ctx, id, date, clock)
			default:
				return fmt.Errorf("either --at or --date with --time is required")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Appointment %s rescheduled.\n", id)
			return nil
		}),
	}
	cmd.Flags().String("at", "", "New start as YYYY-MM-DDTHH:mm[:ss]")
	cmd.Flags().String("date", "", "New date as YYYY-MM-DD")
	cmd.Flags().String("time", "", "New time as HH:mm")
	return cmd
}

func deleteCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <appointment-id>...",
		Short: "Cancel appointments, or delete ones that are already cancelled",
		Args:  cobra.MinimumNArgs(1),
		RunE: withConsole(open, func(ctx context.Context, c *console, cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := c.svc.Delete(ctx, appointment.ID(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Appointment %s cancelled.\n", args[0])
				return nil
			}
			res, err := c.svc.BulkCancel(ctx, toIDs(args))
			if err != nil {
				return err
			}
			return printBulk(cmd, res)
		}),
	}
}

func remindCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "remind <appointment-id>...",
		Short: "Send appointment reminders to patients",
		Args:  cobra.MinimumNArgs(1),
		RunE: withConsole(open, func(ctx context.Context, c *console, cmd *cobra.Command, args []string) error {
			res, err := c.svc.BulkRemind(ctx, toIDs(args))
			if err != nil {
				return err
			}
			return printBulk(cmd, res)
		}),
	}
}

func toIDs(args []string) []appointment.ID {
	ids := make([]appointment.ID, 0, len(args))
	for _, a := range args {
		ids = append(ids, appointment.ID(strings.TrimSpace(a)))
	}
	return ids
}

func printBulk(cmd *cobra.Command, res appointment.BulkResult) error {
	if asJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed\n", len(res.Succeeded), len(res.Failed))
	for id, reason := range res.Failed {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", id, reason)
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d appointments failed", len(res.Failed))
	}
	return nil
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table(out io.Writer, headers ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	return w
}
