package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rcliao/pksim/internal/dataset"
	"github.com/rcliao/pksim/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit model parameters to observed data",
		Long: "Fit the parameters named in a JSON fit request by weighted least squares. " +
			"Observed data comes from the request's fitting_groups, or from --csv files and " +
			"--sqlite tables, each of which becomes one group dosed like the request's first group.",
		Run: runFit,
	}

	cmd.Flags().StringP("request", "r", "", "JSON fit request (required)")
	cmd.Flags().StringP("model", "m", "", "Model text file (overrides the request's equations)")
	cmd.Flags().StringSlice("csv", nil, "Observed-data CSV file, one group per file (repeatable)")
	cmd.Flags().String("sqlite", "", "SQLite database of observed-data tables, one group per table")
	cmd.Flags().StringSlice("table", nil, "Table to load from --sqlite (repeatable, default: all)")
	cmd.Flags().StringToString("map", nil, "Observed column to model variable mapping for loaded data (col=var)")
	cmd.Flags().Bool("auto-bounds", false, "Bound each fitted parameter to [x0/10, 10*x0] unless given")
	cmd.Flags().Bool("parallel", false, "Simulate fitting groups concurrently")
	cmd.Flags().Int("workers", 0, "Concurrent group simulations when --parallel (default: GOMAXPROCS)")
	cmd.Flags().Duration("timeout", 0, "Stop the fit after this long (default: config Fit.Timeout)")

	cmd.MarkFlagRequired("request")

	RootCmd.AddCommand(cmd)
}

func runFit(cmd *cobra.Command, args []string) {
	reqPath, _ := cmd.Flags().GetString("request")
	modelPath, _ := cmd.Flags().GetString("model")
	csvPaths, _ := cmd.Flags().GetStringSlice("csv")
	dbPath, _ := cmd.Flags().GetString("sqlite")
	tableNames, _ := cmd.Flags().GetStringSlice("table")
	mappings, _ := cmd.Flags().GetStringToString("map")
	autoBounds, _ := cmd.Flags().GetBool("auto-bounds")
	parallel, _ := cmd.Flags().GetBool("parallel")
	workers, _ := cmd.Flags().GetInt("workers")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var req model.FitRequest
	if err := readRequest(reqPath, &req); err != nil {
		exitErr("fit", err)
	}
	text, err := readModel(modelPath, req.Equations)
	if err != nil {
		exitErr("fit", err)
	}
	req.Equations = text
	if autoBounds {
		req.AutoBounds = true
	}

	ctx := cmd.Context()

	tables, err := loadTables(ctx, csvPaths, dbPath, tableNames)
	if err != nil {
		exitErr("load data", err)
	}
	if len(tables) > 0 {
		groups, err := tableGroups(req.FittingGroups, mappings, tables)
		if err != nil {
			exitErr("load data", err)
		}
		req.FittingGroups = groups
	}

	cfg := loadConfig()
	if parallel {
		cfg.Fit.Parallel = true
	}
	if workers > 0 {
		cfg.Fit.Workers = workers
	}
	if timeout <= 0 {
		timeout = time.Duration(cfg.Fit.Timeout)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := openEngine(cfg).Fit(ctx, req)
	if err != nil {
		exitErr("fit", err)
	}

	if !textOutput() {
		printJSON(res)
		return
	}
	printFit(res)
}

// loadTables reads every CSV file, then the chosen tables of the SQLite
// database (all of them when names is empty).
func loadTables(ctx context.Context, csvPaths []string, dbPath string, names []string) ([]*dataset.Table, error) {
	var tables []*dataset.Table
	for _, p := range csvPaths {
		t, err := dataset.LoadCSV(p)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if dbPath == "" {
		if len(names) > 0 {
			return nil, fmt.Errorf("--table needs --sqlite")
		}
		return tables, nil
	}

	src, err := dataset.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	if len(names) == 0 {
		all, err := src.LoadAll(ctx)
		if err != nil {
			return nil, err
		}
		return append(tables, all...), nil
	}
	for _, name := range names {
		t, err := src.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// tableGroups turns loaded tables into fitting groups. Each group takes its
// doses from the first request group and its mappings from mappings, then
// from the first request group, then maps every column to the variable of
// the same name.
func tableGroups(template []model.FittingGroup, mappings map[string]string, tables []*dataset.Table) ([]model.FittingGroup, error) {
	var doses []model.Dose
	var tstart *float64
	if len(template) > 0 {
		doses = template[0].Doses
		tstart = template[0].TStart
		if len(mappings) == 0 {
			mappings = template[0].Mappings
		}
	}

	groups := make([]model.FittingGroup, 0, len(tables))
	for _, t := range tables {
		if t.Rows() == 0 {
			return nil, fmt.Errorf("%s: no rows with a numeric time", t.Name)
		}
		m := mappings
		if len(m) == 0 {
			m = make(map[string]string, len(t.Order))
			for _, col := range t.Order {
				m[col] = col
			}
		}
		g := t.Group(doses, m)
		g.TStart = tstart
		groups = append(groups, g)
	}
	return groups, nil
}

func printFit(res *model.FitResult) {
	state := "did not converge"
	if res.Converged {
		state = "converged"
	}
	fmt.Printf("Run %s %s: %s\n", res.RunID, state, res.Message)
	fmt.Printf("%s iterations, %s evaluations, %s residuals, %d degrees of freedom\n",
		humanize.Comma(int64(res.Iterations)), humanize.Comma(int64(res.NFev)),
		humanize.Comma(int64(res.Residuals)), res.DOF)
	fmt.Printf("Cost %s, SSR %s (weighting %s)\n\n", num(res.Cost), num(res.SSRTotal), res.Weighting)

	ci := fmt.Sprintf("%s%% CI", humanize.Ftoa(res.Confidence*100))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Parameter", "Value", "Std. error", ci + " low", ci + " high"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, p := range res.Params {
		table.Append([]string{p.Name, num(p.Value), num(p.StdErr), num(p.CILower), num(p.CIUpper)})
	}
	table.Render()
}
