package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "List tasks and manage per-scope enablement and intervals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks with their effective enablement and interval",
	Long: `List tasks with their effective enablement and interval, as the next
tick will evaluate them. Without --tenant the global tasks are listed; with
--tenant the tenant tasks for that tenant.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := tenantFlag(cmd)
		if err != nil {
			return err
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		statuses, err := a.core.TaskStatuses(cmd.Context(), tenantID)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSCOPE\tENABLED\tEFFECTIVE\tDEFAULT\tPATH\tNAME")
		for _, st := range statuses {
			t := st.Task
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
				t.Key, t.Scope, st.Enabled, st.Interval, t.Interval, t.Path, t.Name)
		}
		return tw.Flush()
	},
}

var taskEnableCmd = &cobra.Command{
	Use:   "enable <task>",
	Short: "Enable a global task, or a tenant task for one tenant (--tenant)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnablement(cmd, args[0], true)
	},
}

var taskDisableCmd = &cobra.Command{
	Use:   "disable <task>",
	Short: "Disable a global task, or a tenant task for one tenant (--tenant)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnablement(cmd, args[0], false)
	},
}

var taskIntervalCmd = &cobra.Command{
	Use:   "interval <task> <seconds>",
	Short: "Override a task interval globally or for one tenant; 0 removes the override",
	Long: `Override a task interval. A global override applies to every task;
a tenant override (--tenant) applies to tenant tasks only. 0 removes the override.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		secs, err := strconv.Atoi(args[1])
		if err != nil || secs < 0 {
			return errors.Newf("invalid interval %q", args[1])
		}
		tenantID, err := tenantFlag(cmd)
		if err != nil {
			return err
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		return a.core.SetIntervalOverride(cmd.Context(), args[0], tenantID, secs)
	},
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenant sync configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var tenantSetCmd = &cobra.Command{
	Use:   "set <tenant-id> <principal-id>",
	Short: "Create or update a tenant sync configuration",
	Long: `Create or update a tenant sync configuration. Params are merged into
every job payload enqueued for the tenant.

Example:
  hauler-scheduler tenant set 42 9001 --param region=eu --param scope=full`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid tenant id %q", args[0])
		}
		principal, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid principal id %q", args[1])
		}
		pairs, _ := cmd.Flags().GetStringSlice("param")
		inactive, _ := cmd.Flags().GetBool("inactive")

		params := map[string]any{}
		for _, p := range pairs {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return errors.Newf("malformed param %q, want key=value", p)
			}
			params[k] = v
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		return a.core.Tenants().Save(cmd.Context(),
			domain.Tenant{ID: id, PrincipalID: principal, Params: params}, !inactive)
	},
}

func init() {
	for _, c := range []*cobra.Command{taskListCmd, taskEnableCmd, taskDisableCmd, taskIntervalCmd} {
		c.Flags().String("tenant", "", "tenant id; empty means the global scope")
	}
	taskCmd.AddCommand(taskListCmd, taskEnableCmd, taskDisableCmd, taskIntervalCmd)

	tenantSetCmd.Flags().StringSlice("param", nil, "job parameter as key=value, repeatable")
	tenantSetCmd.Flags().Bool("inactive", false, "store the configuration but do not schedule the tenant")
	tenantCmd.AddCommand(tenantSetCmd)
}

func setEnablement(cmd *cobra.Command, task string, enabled bool) error {
	tenantID, err := tenantFlag(cmd)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	return a.core.SetTaskEnabled(cmd.Context(), task, tenantID, enabled)
}

func tenantFlag(cmd *cobra.Command) (*int64, error) {
	raw, _ := cmd.Flags().GetString("tenant")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid tenant id %q", raw)
	}
	return &id, nil
}
