package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rcliao/pksim/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a model under a dosing schedule",
		Long: "Simulate the model in a JSON request (initials, parameters, time span, doses) and " +
			"print the time course with PK metrics per compartment.",
		Run: runSimulate,
	}

	cmd.Flags().StringP("request", "r", "", "JSON simulate request (required)")
	cmd.Flags().StringP("model", "m", "", "Model text file (overrides the request's equations)")
	cmd.Flags().String("plot", "", "Write a PNG chart of the reported series to this path")

	cmd.MarkFlagRequired("request")

	RootCmd.AddCommand(cmd)
}

func runSimulate(cmd *cobra.Command, args []string) {
	reqPath, _ := cmd.Flags().GetString("request")
	modelPath, _ := cmd.Flags().GetString("model")
	plotPath, _ := cmd.Flags().GetString("plot")

	var req model.SimulateRequest
	if err := readRequest(reqPath, &req); err != nil {
		exitErr("simulate", err)
	}
	text, err := readModel(modelPath, req.Equations)
	if err != nil {
		exitErr("simulate", err)
	}
	req.Equations = text

	cfg := loadConfig()
	resp, err := openEngine(cfg).Simulate(cmd.Context(), req)
	if err != nil {
		exitErr("simulate", err)
	}

	if plotPath != "" {
		if err := writePlot(plotPath, resp); err != nil {
			exitErr("plot", err)
		}
	}

	if !textOutput() {
		printJSON(resp)
		return
	}
	printSimulate(resp)
}

func printSimulate(resp *model.SimulateResponse) {
	fmt.Printf("%s time points", humanize.Comma(int64(len(resp.Time))))
	if n := len(resp.Time); n > 0 {
		fmt.Printf(" from %g to %g", resp.Time[0], resp.Time[n-1])
	}
	fmt.Println()
	if resp.Failure != nil {
		fmt.Printf("integration stopped early: %s\n", resp.Failure.Message)
	}
	if len(resp.Omitted) > 0 {
		fmt.Printf("omitted derived quantities: %v\n", resp.Omitted)
	}

	names := make([]string, 0, len(resp.PK))
	for name := range resp.PK {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Compartment", "Cmax", "Tmax", "AUC", "Clearance", "Half-life", "Dose"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, name := range names {
		s := resp.PK[name]
		table.Append([]string{name, num(s.Cmax), num(s.Tmax), num(s.AUC), num(s.Clearance), num(s.HalfLife), num(s.Dose)})
	}
	table.Render()
}

// num formats an optional value for text output.
func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.6g", *v)
}
