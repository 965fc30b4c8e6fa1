package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent jobs",
	Long: `List the most recent jobs, newest first.

Examples:
  hauler-scheduler job list
  hauler-scheduler job list --status running --limit 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		var status *_const.JobStatus
		if statusFlag != "" {
			st := _const.JobStatus(statusFlag)
			if !st.Valid() {
				return errors.Newf("unknown status %q", statusFlag)
			}
			status = &st
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		jobs, err := a.core.Queue().List(cmd.Context(), status, limit)
		if err != nil {
			return err
		}
		printJobs(cmd.OutOrStdout(), jobs)
		return nil
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show status, progress and log of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid job id %q", args[0])
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		job, err := a.core.Queue().Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		printJob(cmd.OutOrStdout(), job)
		return nil
	},
}

func init() {
	jobListCmd.Flags().String("status", "", "filter by status (queued, running, succeeded, failed, dead)")
	jobListCmd.Flags().Int("limit", 20, "maximum number of jobs to show")
	jobCmd.AddCommand(jobListCmd, jobShowCmd)
}

func printJobs(w io.Writer, jobs []domain.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTENANT\tSTATUS\tPROGRESS\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.JobType, tenantLabel(j.TenantID), j.Status, progressLabel(j.Payload.Progress),
			j.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func printJob(w io.Writer, j domain.Job) {
	fmt.Fprintf(w, "Job %d\n", j.ID)
	fmt.Fprintf(w, "  Type:     %s\n", j.JobType)
	fmt.Fprintf(w, "  Tenant:   %s\n", tenantLabel(j.TenantID))
	fmt.Fprintf(w, "  Status:   %s\n", j.Status)
	if j.WorkerID != "" {
		fmt.Fprintf(w, "  Worker:   %s\n", j.WorkerID)
	}
	fmt.Fprintf(w, "  Progress: %s\n", progressLabel(j.Payload.Progress))
	fmt.Fprintf(w, "  Created:  %s\n", j.CreatedAt.Format(time.RFC3339))
	if j.StartedAt != nil {
		fmt.Fprintf(w, "  Started:  %s\n", j.StartedAt.Format(time.RFC3339))
	}
	if j.FinishedAt != nil {
		fmt.Fprintf(w, "  Finished: %s\n", j.FinishedAt.Format(time.RFC3339))
	}
	if j.LastError != "" {
		fmt.Fprintf(w, "  Error:    %s\n", j.LastError)
	}
	if j.FailureReason != "" {
		fmt.Fprintf(w, "  Reason:   %s\n", j.FailureReason)
	}
	if len(j.Result) > 0 {
		fmt.Fprintf(w, "  Result:   %s\n", j.Result)
	}
	if len(j.Payload.Log) > 0 {
		fmt.Fprintln(w, "  Log:")
		for _, e := range j.Payload.Log {
			fmt.Fprintf(w, "    %s  %s\n", e.At.Format(time.RFC3339), e.Message)
		}
	}
}

func tenantLabel(id *int64) string {
	if id == nil {
		return "global"
	}
	return strconv.FormatInt(*id, 10)
}

func progressLabel(p *domain.Progress) string {
	if p == nil {
		return "-"
	}
	label := fmt.Sprintf("%d/%d", p.Current, p.Total)
	if p.Total > 0 {
		label += fmt.Sprintf(" (%.0f%%)", p.Percentage())
	}
	if p.Stage != "" {
		label += " " + p.Stage
	}
	if p.Label != "" {
		label += " " + p.Label
	}
	return label
}
