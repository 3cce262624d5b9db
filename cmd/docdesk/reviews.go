package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/render"
	"github.com/jackzampolin/docdesk/internal/reviews"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Review outcomes from analysis",
}

type reviewRows []reviews.Row

func (r reviewRows) Text() string { return render.ReviewTable(r) }

var (
	reviewFilter reviews.Filter
	reviewTypes  []string
)

var reviewsListCmd = &cobra.Command{
	Use:   "list <book-id>",
	Short: "List a book's reviews, one row per review type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			filter := reviewFilter
			for _, s := range reviewTypes {
				t, err := reviews.ParseType(s)
				if err != nil {
					return err
				}
				filter.Types = append(filter.Types, t)
			}
			outcomes, err := a.coord.ListReviewOutcomes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return api.Output(reviewRows(filter.Apply(outcomes)))
		})
	},
}

var reviewsUpdateCmd = &cobra.Command{
	Use:   "update <outcome-id> <review-type>",
	Short: "Edit the observation or recommendation of one review",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			t, err := reviews.ParseType(args[1])
			if err != nil {
				return err
			}
			var u reviews.Update
			if cmd.Flags().Changed("observation") {
				v, _ := cmd.Flags().GetString("observation")
				u.Observation = &v
			}
			if cmd.Flags().Changed("recommendation") {
				v, _ := cmd.Flags().GetString("recommendation")
				u.Recommendation = &v
			}
			return a.coord.UpdateReviewOutcome(cmd.Context(), args[0], t, u)
		})
	},
}

var reviewsDeleteCmd = &cobra.Command{
	Use:   "delete <outcome-id> <review-type>",
	Short: "Delete one review from an outcome",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			t, err := reviews.ParseType(args[1])
			if err != nil {
				return err
			}
			return a.coord.DeleteReviewOutcome(cmd.Context(), args[0], t)
		})
	},
}

var reviewsTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List review types",
	Run: func(cmd *cobra.Command, args []string) {
		names := make([]string, len(reviews.Types))
		for i, t := range reviews.Types {
			names[i] = fmt.Sprintf("%-30s %s", t, t.Title())
		}
		fmt.Println(strings.Join(names, "\n"))
	},
}

func init() {
	reviewsListCmd.Flags().Float64Var(&reviewFilter.MinConfidence, "min-confidence", 0, "Drop reviews below this confidence")
	reviewsListCmd.Flags().BoolVar(&reviewFilter.OnlyHumanReview, "human-review", false, "Only reviews flagged for a human")
	reviewsListCmd.Flags().StringSliceVar(&reviewTypes, "type", nil, "Review types to keep (repeatable)")

	reviewsUpdateCmd.Flags().String("observation", "", "New observation")
	reviewsUpdateCmd.Flags().String("recommendation", "", "New recommendation")

	reviewsCmd.AddCommand(reviewsListCmd, reviewsUpdateCmd, reviewsDeleteCmd, reviewsTypesCmd)
	rootCmd.AddCommand(reviewsCmd)
}
