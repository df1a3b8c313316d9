package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rcliao/pksim/internal/dataset"
)

// tableInfo summarizes one observed-data table.
type tableInfo struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Missing int      `json:"missing"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List observed-data tables",
		Long:  "Load observed-data CSV files and SQLite tables the way fit does and summarize each one.",
		Run:   runTables,
	}

	cmd.Flags().StringSlice("csv", nil, "Observed-data CSV file (repeatable)")
	cmd.Flags().String("sqlite", "", "SQLite database of observed-data tables")
	cmd.Flags().StringSlice("table", nil, "Table to load from --sqlite (repeatable, default: all)")
	cmd.Flags().Bool("names-only", false, "Only output table names")

	RootCmd.AddCommand(cmd)
}

func runTables(cmd *cobra.Command, args []string) {
	csvPaths, _ := cmd.Flags().GetStringSlice("csv")
	dbPath, _ := cmd.Flags().GetString("sqlite")
	tableNames, _ := cmd.Flags().GetStringSlice("table")
	namesOnly, _ := cmd.Flags().GetBool("names-only")

	if len(csvPaths) == 0 && dbPath == "" {
		exitErr("tables", fmt.Errorf("nothing to load (use --csv or --sqlite)"))
	}

	if namesOnly && len(csvPaths) == 0 && len(tableNames) == 0 {
		src, err := dataset.OpenSQLite(dbPath)
		if err != nil {
			exitErr("open database", err)
		}
		defer src.Close()
		names, err := src.Tables(cmd.Context())
		if err != nil {
			exitErr("tables", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	tables, err := loadTables(cmd.Context(), csvPaths, dbPath, tableNames)
	if err != nil {
		exitErr("load data", err)
	}
	infos := summarizeTables(tables)

	if namesOnly {
		for _, info := range infos {
			fmt.Println(info.Name)
		}
		return
	}
	if !textOutput() {
		printJSON(infos)
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Table", "Rows", "Columns", "Missing"})
	for _, info := range infos {
		table.Append([]string{info.Name, humanize.Comma(int64(info.Rows)), strings.Join(info.Columns, ", "), humanize.Comma(int64(info.Missing))})
	}
	table.Render()
}

func summarizeTables(tables []*dataset.Table) []tableInfo {
	infos := make([]tableInfo, 0, len(tables))
	for _, t := range tables {
		info := tableInfo{Name: t.Name, Rows: t.Rows(), Columns: t.Order}
		if info.Columns == nil {
			info.Columns = []string{}
		}
		for _, col := range t.Order {
			for _, v := range t.Columns[col] {
				if v == nil {
					info.Missing++
				}
			}
		}
		infos = append(infos, info)
	}
	return infos
}
