package cli

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rcliao/pksim/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "doses",
		Short: "Expand a dosing schedule into events",
		Long: "Expand the doses of a simulate request into the ordered bolus and infusion " +
			"events that would be applied between t_start and t_end.",
		Run: runDoses,
	}

	cmd.Flags().StringP("request", "r", "", "JSON simulate request (required)")
	cmd.Flags().StringP("model", "m", "", "Model text file (overrides the request's equations)")

	cmd.MarkFlagRequired("request")

	RootCmd.AddCommand(cmd)
}

func runDoses(cmd *cobra.Command, args []string) {
	reqPath, _ := cmd.Flags().GetString("request")
	modelPath, _ := cmd.Flags().GetString("model")

	var req model.SimulateRequest
	if err := readRequest(reqPath, &req); err != nil {
		exitErr("doses", err)
	}
	text, err := readModel(modelPath, req.Equations)
	if err != nil {
		exitErr("doses", err)
	}

	cfg := loadConfig()
	start, end := cfg.Simulate.TStart, cfg.Simulate.TEnd
	if req.TStart != nil {
		start = *req.TStart
	}
	if req.TEnd != nil {
		end = *req.TEnd
	}

	events, err := openEngine(cfg).Schedule(text, req.Doses, start, end)
	if err != nil {
		exitErr("doses", err)
	}

	if !textOutput() {
		printJSON(events)
		return
	}
	if len(events) == 0 {
		fmt.Println("No dosing events.")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Kind", "Compartment", "Amount", "Rate"})
	for _, ev := range events {
		table.Append([]string{fmt.Sprintf("%g", ev.Time), ev.Kind, ev.Compartment, num(ev.Amount), num(ev.Rate)})
	}
	table.Render()
}
