package file

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"AirQualityDashboard/src/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

const sampleCSV = `Date,Source,Site ID,Site_Name,Daily_Mean_PM2_5_Concentration,DAILY_AQI_VALUE,COUNTY,SITE_LATITUDE,SITE_LONGITUDE
01/01/2024,AQS,10730023,North Birmingham,10,42,Jefferson,33.553056,-86.815
01/02/2024,AQS,10970003,Chickasaw,20,55,Mobile,30.7697,-88.0875
01/03/2024,AQS,10730023,North Birmingham,14.5,48,Jefferson,33.553056,-86.815
01/03/2024,AQS,10890014,"Huntsville, Old Airport",7.25,30,Madison,34.6875,-86.5863
`

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestLoadCSV(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader(sampleCSV), Options{Name: "alabama_NO2"})
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())
	assert.Equal(t, "alabama_NO2", ds.Name())

	recs := ds.Records()
	assert.Equal(t, processor.Record{
		County: "Jefferson", Date: date("2024-01-01"), Concentration: 10, AQI: 42,
		Latitude: 33.553056, Longitude: -86.815, SiteName: "North Birmingham",
	}, recs[0])
	assert.Equal(t, "Huntsville, Old Airport", recs[3].SiteName)
	assert.Equal(t, []string{"Jefferson", "Madison", "Mobile"}, processor.ListDistinctCategories(ds))
}

func TestLoadCSV_BOMAndEncoding(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("\ufeff"+sampleCSV), Options{})
	require.NoError(t, err)

	latin := strings.Replace(sampleCSV, "Chickasaw", "Chickasaw Café", 1)
	encoded, err := charmap.Windows1252.NewEncoder().String(latin)
	require.NoError(t, err)

	ds, err := LoadCSV(strings.NewReader(encoded), Options{Encoding: "windows-1252"})
	require.NoError(t, err)
	assert.Equal(t, "Chickasaw Café", ds.Records()[1].SiteName)

	_, err = LoadCSV(strings.NewReader(sampleCSV), Options{Encoding: "no-such-encoding"})
	assert.Error(t, err)
}

func TestLoadCSV_Errors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader(""), Options{})
		assert.ErrorIs(t, err, processor.ErrMissingColumn)
	})

	t.Run("missing column", func(t *testing.T) {
		in := "Date,COUNTY\n2024-01-01,Jefferson\n"
		_, err := LoadCSV(strings.NewReader(in), Options{})
		assert.ErrorIs(t, err, processor.ErrMissingColumn)
	})

	t.Run("bad number reports line", func(t *testing.T) {
		in := strings.Replace(sampleCSV, "14.5", "n/a", 1)
		_, err := LoadCSV(strings.NewReader(in), Options{})
		var perr *processor.ParseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, 4, perr.Line)
		assert.Equal(t, processor.ColConcentration, perr.Column)
		assert.ErrorIs(t, err, processor.ErrInvalidNumber)
	})

	t.Run("ragged row", func(t *testing.T) {
		in := sampleCSV + "01/04/2024,AQS\n"
		_, err := LoadCSV(strings.NewReader(in), Options{})
		var perr *processor.ParseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, 6, perr.Line)
		assert.ErrorIs(t, err, processor.ErrMalformedRow)
	})

	t.Run("ragged row quarantined", func(t *testing.T) {
		in := sampleCSV + "01/04/2024,AQS\n" + "bad-date,AQS,1,Wylam,1,1,Jefferson,33,-86\n"
		ds, err := LoadCSV(strings.NewReader(in), Options{SkipInvalidRows: true})
		require.NoError(t, err)
		assert.Equal(t, 4, ds.Len())
		assert.Len(t, ds.Rejected(), 2)
	})
}

func TestLoadCSV_RoundTrip(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader(sampleCSV), Options{Name: "alabama_NO2"})
	require.NoError(t, err)

	criteria := []processor.FilterCriteria{
		{},
		{Categories: []string{"Jefferson"}},
		{DateRange: processor.NewDateRange(date("2024-01-03"), date("2024-01-03"))},
		{Categories: []string{"Baldwin"}},
	}
	for _, c := range criteria {
		view := processor.ApplyFilter(ds, c)
		out, err := processor.Serialize(view)
		require.NoError(t, err)

		back, err := LoadCSV(bytes.NewReader(out), Options{Name: "alabama_NO2"})
		require.NoError(t, err)
		assert.Equal(t, view.Records(), back.Records())
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]interface{}{
		{"Daily NO2 export"},
		{"Date", "Site_Name", "Daily_Mean_PM2_5_Concentration", "DAILY_AQI_VALUE", "COUNTY", "SITE_LATITUDE", "SITE_LONGITUDE"},
		{45292, "North Birmingham", 10.5, 42, "Jefferson", 33.553056, -86.815},
		{},
		{"2024-01-02", "Chickasaw", 20, 55, "Mobile", 30.7697, -88.0875},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		if len(row) > 0 {
			require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
		}
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	ds, err := ReadXLSX(buf.Bytes(), Options{Name: "xlsx", HeaderRow: 2})
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	recs := ds.Records()
	assert.Equal(t, date("2024-01-01"), recs[0].Date)
	assert.Equal(t, 10.5, recs[0].Concentration)
	assert.Equal(t, "Mobile", recs[1].County)

	_, err = ReadXLSX(buf.Bytes(), Options{SheetName: "missing"})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alabamaData2024_NO2.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	ds, err := LoadFile(path, Options{Name: "alabama_NO2"})
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Len())
	assert.Equal(t, path, ds.Source())

	_, err = LoadFile(filepath.Join(dir, "data.parquet"), Options{})
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.csv"), Options{})
	assert.Error(t, err)
}
