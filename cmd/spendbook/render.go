package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"spendbook/internal/aggregate"
	"spendbook/internal/models"
	"spendbook/internal/tracker"
)

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func writeExpenses(w io.Writer, expenses []models.Expense) error {
	if len(expenses) == 0 {
		_, err := fmt.Fprintln(w, "No expenses found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE\tNAME\tCATEGORY\tAMOUNT\tID")
	for i, e := range expenses {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i, e.ShortDate(), e.Name, e.Category, money(e.Amount), e.ID)
	}
	return tw.Flush()
}

func writeView(w io.Writer, v *tracker.View) error {
	s := v.Summary
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total spent:\t%s\n", money(s.Total))
	if s.Budget > 0 {
		fmt.Fprintf(tw, "Budget:\t%s\n", money(s.Budget))
		fmt.Fprintf(tw, "Remaining:\t%s\n", money(s.Remaining))
	}
	fmt.Fprintf(tw, "Expenses:\t%d\n", s.Count)
	if s.TopCategory != "" {
		fmt.Fprintf(tw, "Top category:\t%s\n", s.TopCategory)
	}
	fmt.Fprintf(tw, "Average per day:\t%s\n", money(s.AverageDaily))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(v.Shares) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tTOTAL\tSHARE")
		for _, sh := range v.Shares {
			fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", sh.Category, money(sh.Total), sh.Percentage)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if v.Alert != aggregate.AlertNone {
		fmt.Fprintln(w)
		fmt.Fprintln(w, v.Alert.Message())
	}
	return nil
}

// alertLine prints the budget alert after a change, if there is one.
func alertLine(ctx context.Context, c *cli) error {
	view, err := c.svc.Dashboard(ctx, tracker.Query{})
	if err != nil {
		return err
	}
	if view.Alert != aggregate.AlertNone {
		fmt.Fprintln(c.stdout, view.Alert.Message())
	}
	return nil
}
