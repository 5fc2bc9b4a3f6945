package cmd

import (
	"fmt"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"accessdesk/internal/bootstrap"
	"accessdesk/internal/bootstrap/logging"
	"accessdesk/internal/errs"
	"accessdesk/internal/infrastructure/supabase"
	"accessdesk/internal/usecase/fulfillment"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Inspect access requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List access requests with their support coverage",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *fulfillment.Service, _ *supabase.Client) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		views, err := svc.List(ctx)
		if err != nil {
			return errs.Wrap(err, "list access requests")
		}

		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"ID", "GITHUB", "EMAIL", "STATUS", "CREATED", "SUPPORT UNTIL", "SUPPORT"})

		for _, view := range views {
			support := "expired"
			if view.SupportActive {
				support = "active"
			}
			tw.AppendRow(table.Row{
				view.ID,
				view.GithubUsername,
				view.Email,
				string(view.Status),
				view.CreatedAt.Format("2006-01-02"),
				view.SupportExpiresAt.Format("2006-01-02"),
				support,
			})
		}

		if _, err := fmt.Fprintln(cmd.OutOrStdout(), tw.Render()); err != nil {
			return errs.Wrap(err, "write requests table")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(requestsCmd)
	requestsCmd.AddCommand(requestsListCmd)
}
