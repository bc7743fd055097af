package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/seermedical/seer-client-go/pkg/client"
	"github.com/seermedical/seer-client-go/pkg/pagination"
)

func newStudiesCmd(a *app) *cobra.Command {
	var search, party string
	var limit int

	cmd := &cobra.Command{
		Use:   "studies",
		Short: "List studies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			tbl, err := c.GetStudies(cmd.Context(), search, party, limit)
			if err != nil {
				return err
			}
			return tbl.WriteCSV(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Only studies matching this search term")
	cmd.Flags().StringVar(&party, "party", "", "Organisation (party) id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Studies per request")
	return cmd
}

func newLabelGroupsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "label-groups <study-id>...",
		Short: "List the label groups of one or more studies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			tbl, err := c.GetLabelGroups(cmd.Context(), args, a.cfg.EffectiveThreads())
			if err != nil {
				return err
			}
			return tbl.WriteCSV(cmd.OutOrStdout())
		},
	}
}

func newLabelsCmd(a *app) *cobra.Command {
	var from, to string
	var limit int

	cmd := &cobra.Command{
		Use:   "labels <study-id> <label-group-id>",
		Short: "List the labels of a label group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromMS, toMS, err := parseWindow(from, to)
			if err != nil {
				return err
			}

			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			tbl, err := c.GetLabels(cmd.Context(), args[0], args[1], fromMS, toMS, limit)
			if err != nil {
				return err
			}
			return tbl.WriteCSV(cmd.OutOrStdout())
		},
	}

	addWindowFlags(cmd, &from, &to)
	cmd.Flags().IntVar(&limit, "limit", client.DefaultLabelLimit, "Labels per request")
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the available label tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			tbl, err := c.GetTags(cmd.Context())
			if err != nil {
				return err
			}
			return tbl.WriteCSV(cmd.OutOrStdout())
		},
	}
}

func newOrganisationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "organisations",
		Short: "List the organisations visible to the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			tbl, err := c.GetOrganisations(cmd.Context())
			if err != nil {
				return err
			}
			return tbl.WriteCSV(cmd.OutOrStdout())
		},
	}
}

func newPatientsCmd(a *app) *cobra.Command {
	var party string

	cmd := &cobra.Command{
		Use:   "patients",
		Short: "List patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			tbl, err := c.GetPatients(cmd.Context(), party)
			if err != nil {
				return err
			}
			return tbl.WriteCSV(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&party, "party", "", "Organisation (party) id")
	return cmd
}

func newCohortCmd(a *app) *cobra.Command {
	var users bool
	var limit int

	cmd := &cobra.Command{
		Use:   "cohort <cohort-id>",
		Short: "List the members of a study cohort, or a user cohort with --users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			members := c.GetStudyIDsInCohort
			if users {
				members = c.GetUserIDsInCohort
			}
			ids, err := members(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&users, "users", false, "Treat the id as a user cohort")
	cmd.Flags().IntVar(&limit, "limit", client.DefaultCohortLimit, "Members per request")
	return cmd
}

func newChannelDataCmd(a *app) *cobra.Command {
	var group, from, to string

	cmd := &cobra.Command{
		Use:   "channel-data <study-id>",
		Short: "Download the channel data of a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromMS, toMS, err := parseWindow(from, to)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			study, err := c.GetStudyMetadata(ctx, args[0])
			if err != nil {
				return err
			}

			tbl, res, err := c.GetChannelData(ctx, study, client.ChannelDataRequest{
				ChannelGroup: group,
				From:         fromMS,
				To:           toMS,
				Threads:      a.cfg.EffectiveThreads(),
			})
			if err != nil {
				return err
			}
			reportFailures(a, res)
			return tbl.WriteCSV(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Channel group id or name (default: all groups)")
	addWindowFlags(cmd, &from, &to)
	return cmd
}

func addWindowFlags(cmd *cobra.Command, from, to *string) {
	cmd.Flags().StringVar(from, "from", "", "Start time, epoch ms or RFC 3339")
	cmd.Flags().StringVar(to, "to", "", "End time (exclusive), epoch ms or RFC 3339")
}

// reportFailures logs pages that were skipped in a partial result.
func reportFailures(a *app, res *pagination.Result) {
	if res == nil {
		return
	}
	for _, p := range res.Failed() {
		a.logger.Warn().
			Str("page_id", p.ID).
			Err(p.Err).
			Msg("Chunk skipped")
	}
}

// parseWindow parses optional --from and --to values into epoch ms.
// An empty value is 0, which means unbounded.
func parseWindow(from, to string) (float64, float64, error) {
	f, err := parseTime(from)
	if err != nil {
		return 0, 0, fmt.Errorf("--from: %w", err)
	}
	t, err := parseTime(to)
	if err != nil {
		return 0, 0, fmt.Errorf("--to: %w", err)
	}
	if t > 0 && t <= f {
		return 0, 0, fmt.Errorf("--to must be after --from")
	}
	return f, t, nil
}

func parseTime(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return ms, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want epoch ms or RFC 3339", s)
	}
	return float64(ts.UnixMilli()), nil
}
