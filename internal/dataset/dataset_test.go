package dataset

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/pksim/internal/model"
)

func TestReadCSV(t *testing.T) {
	src := "\ufefftime, Cp ,Cq\n" +
		"0,1.5,NA\n" +
		"1,, 2\n" +
		"x,3,3\n" +
		"2,nan,abc\n" +
		"3,4\n" +
		"\n" +
		"4,5e-1,6\n"
	tbl, err := ReadCSV(strings.NewReader(src), "obs")
	require.NoError(t, err)

	assert.Equal(t, "obs", tbl.Name)
	assert.Equal(t, []float64{0, 1, 2, 4}, tbl.Times)
	assert.Equal(t, []string{"Cp", "Cq"}, tbl.Order)
	assert.Equal(t, 4, tbl.Rows())

	cp := tbl.Columns["Cp"]
	require.Len(t, cp, 4)
	assert.Equal(t, 1.5, *cp[0])
	assert.Nil(t, cp[1])
	assert.Nil(t, cp[2])
	assert.Equal(t, 0.5, *cp[3])

	cq := tbl.Columns["Cq"]
	assert.Nil(t, cq[0])
	assert.Equal(t, 2.0, *cq[1])
	assert.Nil(t, cq[2])

	obs := tbl.Observed()
	require.Contains(t, obs, model.ObservedTimeColumn)
	assert.Equal(t, 4.0, *obs[model.ObservedTimeColumn][3])
	assert.NotContains(t, obs, "time")
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"no time column", "a,b\n1,2\n"},
		{"two time columns", "Time,TIME\n1,2\n"},
		{"duplicate column", "Time,a,a\n1,2,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.src), "obs")
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}

func TestLoadCSV_NamesTableAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "high_dose.csv")
	require.NoError(t, os.WriteFile(path, []byte("Time,C\n0,1\n1,0.5\n"), 0o644))

	tbl, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, "high_dose", tbl.Name)

	g := tbl.Group([]model.Dose{{Compartment: "A", Type: model.DoseBolus, Amount: 1}}, map[string]string{"C": "Conc"})
	assert.Equal(t, "high_dose", g.Name)
	assert.Len(t, g.Observed[model.ObservedTimeColumn], 2)
	assert.Equal(t, "Conc", g.Mappings["C"])
}

func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obs.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
	CREATE TABLE low (Time REAL, conc REAL, note TEXT);
	INSERT INTO low VALUES (0, 10, 'start'), (1, NULL, '2.5'), (NULL, 3, 'x'), (2, 4, NULL);
	CREATE TABLE high (t_ignored INTEGER, TIME INTEGER, conc REAL);
	INSERT INTO high VALUES (7, 0, 20), (8, 1, 12.5);
	`)
	require.NoError(t, err)
	return path
}

func TestSQLiteSource(t *testing.T) {
	path := newTestDB(t)
	src, err := OpenSQLite(path)
	require.NoError(t, err)
	defer src.Close()
	ctx := context.Background()

	names, err := src.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, names)

	low, err := src.Load(ctx, "low")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, low.Times)
	assert.Equal(t, []string{"conc", "note"}, low.Order)
	assert.Equal(t, 10.0, *low.Columns["conc"][0])
	assert.Nil(t, low.Columns["conc"][1])
	assert.Nil(t, low.Columns["note"][0])
	assert.Equal(t, 2.5, *low.Columns["note"][1])
	assert.Nil(t, low.Columns["note"][2])

	all, err := src.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "high", all[0].Name)
	assert.Equal(t, []float64{0, 1}, all[0].Times)
	assert.Equal(t, 12.5, *all[0].Columns["conc"][1])
}

func TestSQLiteSource_ReadOnlyAndNames(t *testing.T) {
	path := newTestDB(t)
	src, err := OpenSQLite(path)
	require.NoError(t, err)
	defer src.Close()
	ctx := context.Background()

	_, err = src.Load(ctx, `low"; DROP TABLE low; --`)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = src.db.ExecContext(ctx, `DELETE FROM low`)
	assert.Error(t, err)

	_, err = src.Load(ctx, "missing")
	assert.Error(t, err)

	_, err = OpenSQLite(filepath.Join(t.TempDir(), "nope.db"))
	assert.Error(t, err)
}
