package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rcliao/pksim/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a model and show its compiled form",
		Long:  "Parse model text (--model file or stdin) and print compartments, parameters, derived quantities and substituted equations.",
		Run:   runParse,
	}

	cmd.Flags().StringP("model", "m", "", "Model text file (default: stdin)")

	RootCmd.AddCommand(cmd)
}

func runParse(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("model")
	text, err := readModel(path, "")
	if err != nil {
		exitErr("parse", err)
	}

	cfg := loadConfig()
	res, err := openEngine(cfg).Inspect(text)
	if err != nil {
		exitErr("parse", err)
	}

	if !textOutput() {
		printJSON(res)
		return
	}
	printParse(res)
}

func printParse(res *model.ParseResult) {
	fmt.Printf("Compartments: %s\n", strings.Join(res.Compartments, ", "))
	fmt.Printf("Parameters:   %s\n\n", strings.Join(res.Parameters, ", "))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Kind", "Expression"})
	table.SetAutoWrapText(false)
	for _, name := range res.Parameters {
		if v, ok := res.Defaults[name]; ok {
			table.Append([]string{name, "default", fmt.Sprintf("%g", v)})
		}
	}
	for _, name := range res.DerivedOrder {
		table.Append([]string{name, "derived", res.DerivedExpressions[name]})
	}
	for _, name := range res.Compartments {
		table.Append([]string{"d" + name + "dt", "ode", res.Equations[name]})
	}
	table.Render()
}
