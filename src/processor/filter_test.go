package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func twoCounties() *Dataset {
	return NewDataset("alabama_NO2", []Record{
		{County: "Jefferson", Date: day("2024-01-01"), Concentration: 10, AQI: 42, Latitude: 33.5, Longitude: -86.8, SiteName: "North Birmingham"},
		{County: "Mobile", Date: day("2024-01-02"), Concentration: 20, AQI: 55, Latitude: 30.7, Longitude: -88.1, SiteName: "Chickasaw"},
	})
}

func sampleDataset() *Dataset {
	return NewDataset("alabama_NO2", []Record{
		{County: "Jefferson", Date: day("2024-01-01"), Concentration: 10, AQI: 42, Latitude: 33.5, Longitude: -86.8, SiteName: "North Birmingham"},
		{County: "Mobile", Date: day("2024-01-02"), Concentration: 20, AQI: 55, Latitude: 30.7, Longitude: -88.1, SiteName: "Chickasaw"},
		{County: "Jefferson", Date: day("2024-01-03"), Concentration: 14.5, AQI: 48, Latitude: 33.5, Longitude: -86.8, SiteName: "North Birmingham"},
		{County: "Madison", Date: day("2024-01-03"), Concentration: 7.25, AQI: 30, Latitude: 34.7, Longitude: -86.6, SiteName: "Huntsville Old Airport"},
		{County: "Jefferson", Date: day("2024-01-05"), Concentration: 12, AQI: 45, Latitude: 33.4, Longitude: -86.9, SiteName: "Wylam"},
		{County: "Mobile", Date: day("2024-01-05"), Concentration: 20, AQI: 55, Latitude: 30.7, Longitude: -88.1, SiteName: "Chickasaw"},
	})
}

func TestApplyFilter_EmptyCriteriaIsIdentity(t *testing.T) {
	ds := sampleDataset()
	view := ApplyFilter(ds, FilterCriteria{})
	assert.Equal(t, ds.Records(), view.Records())
}

func TestApplyFilter_Category(t *testing.T) {
	view := ApplyFilter(twoCounties(), FilterCriteria{Categories: []string{"Jefferson"}})

	require.Equal(t, 1, view.Len())
	got := view.Records()[0]
	assert.Equal(t, "Jefferson", got.County)
	assert.Equal(t, day("2024-01-01"), got.Date)
	assert.Equal(t, 10.0, got.Concentration)

	stats := Summarize(view)
	conc, ok := stats.NumericField(ColConcentration)
	require.True(t, ok)
	assert.Equal(t, 1, conc.Count)
	require.NotNil(t, conc.Mean)
	assert.Equal(t, 10.0, *conc.Mean)
}

func TestApplyFilter_SingleDayRange(t *testing.T) {
	view := ApplyFilter(twoCounties(), FilterCriteria{
		DateRange: NewDateRange(day("2024-01-02"), day("2024-01-02")),
	})
	require.Equal(t, 1, view.Len())
	assert.Equal(t, "Mobile", view.Records()[0].County)
}

func TestApplyFilter_RangeIsInclusive(t *testing.T) {
	view := ApplyFilter(sampleDataset(), FilterCriteria{
		DateRange: NewDateRange(day("2024-01-02"), day("2024-01-03")),
	})
	require.Equal(t, 3, view.Len())
	for _, r := range view.Records() {
		assert.False(t, r.Date.Before(day("2024-01-02")))
		assert.False(t, r.Date.After(day("2024-01-03")))
	}
}

func TestApplyFilter_ReversedRangeIsEmpty(t *testing.T) {
	view := ApplyFilter(sampleDataset(), FilterCriteria{
		DateRange: NewDateRange(day("2024-01-05"), day("2024-01-01")),
	})
	assert.Equal(t, 0, view.Len())
}

func TestApplyFilter_AbsentCategory(t *testing.T) {
	view := ApplyFilter(twoCounties(), FilterCriteria{Categories: []string{"Baldwin"}})
	assert.Equal(t, 0, view.Len())

	stats := Summarize(view)
	conc, _ := stats.NumericField(ColConcentration)
	assert.Equal(t, 0, conc.Count)
	assert.Nil(t, conc.Mean)

	out, err := Serialize(view)
	require.NoError(t, err)
	assert.Equal(t, "COUNTY,Date,Daily_Mean_PM2_5_Concentration,DAILY_AQI_VALUE,SITE_LATITUDE,SITE_LONGITUDE,Site_Name\n", string(out))
}

func TestApplyFilter_CombinedPredicatesPartitionDataset(t *testing.T) {
	ds := sampleDataset()
	criteria := []FilterCriteria{
		{Categories: []string{"Jefferson", "Mobile"}},
		{Categories: []string{"Madison"}, DateRange: NewDateRange(day("2024-01-01"), day("2024-01-04"))},
		{Categories: []string{"Jefferson"}, DateRange: NewDateRange(day("2024-01-02"), day("2024-01-05"))},
		{DateRange: NewDateRange(day("2023-12-01"), day("2023-12-31"))},
	}

	for _, c := range criteria {
		view := ApplyFilter(ds, c)
		included := 0
		for _, r := range ds.Records() {
			if c.Match(r) {
				included++
				assert.Contains(t, view.Records(), r)
			}
		}
		assert.Equal(t, included, view.Len())

		// 结果保持原有相对顺序
		prev := -1
		all := ds.Records()
		for _, r := range view.Records() {
			idx := -1
			for i := prev + 1; i < len(all); i++ {
				if all[i] == r {
					idx = i
					break
				}
			}
			require.NotEqual(t, -1, idx)
			prev = idx
		}
	}
}

func TestApplyFilter_DoesNotMutateDataset(t *testing.T) {
	ds := sampleDataset()
	before := ds.Records()
	view := ApplyFilter(ds, FilterCriteria{Categories: []string{"Mobile"}})

	recs := view.Records()
	recs[0].County = "Changed"
	assert.Equal(t, before, ds.Records())
	assert.Equal(t, "Mobile", view.Records()[0].County)
}

func TestDateRangeFromSelection(t *testing.T) {
	assert.Nil(t, DateRangeFromSelection(nil))

	single := DateRangeFromSelection([]time.Time{day("2024-01-03")})
	require.NotNil(t, single)
	assert.Equal(t, day("2024-01-03"), single.Start)
	assert.Equal(t, day("2024-01-03"), single.End)

	// 按字面取首尾，不做排序
	reversed := DateRangeFromSelection([]time.Time{day("2024-01-05"), day("2024-01-02"), day("2024-01-01")})
	assert.Equal(t, day("2024-01-05"), reversed.Start)
	assert.Equal(t, day("2024-01-01"), reversed.End)
	assert.Equal(t, 0, ApplyFilter(sampleDataset(), FilterCriteria{DateRange: reversed}).Len())
}

func TestDateRange_IgnoresTimeOfDay(t *testing.T) {
	r := NewDateRange(time.Date(2024, 1, 2, 18, 30, 0, 0, time.UTC), time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC))
	assert.True(t, r.Contains(day("2024-01-02")))
	assert.True(t, r.Contains(time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(day("2024-01-03")))
}

func TestListDistinctCategories(t *testing.T) {
	assert.Equal(t, []string{"Jefferson", "Madison", "Mobile"}, ListDistinctCategories(sampleDataset()))
	assert.Empty(t, ListDistinctCategories(NewDataset("empty", nil)))
}

func TestNewDataset_TruncatesDates(t *testing.T) {
	ds := NewDataset("alabama_NO2", []Record{
		{County: "Jefferson", Date: time.Date(2024, 1, 1, 13, 45, 0, 0, time.UTC), Concentration: 10},
	})
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, day("2024-01-01"), ds.Records()[0].Date)

	view := ApplyFilter(ds, FilterCriteria{DateRange: NewDateRange(day("2024-01-01"), day("2024-01-01"))})
	assert.Equal(t, 1, view.Len())
}

func TestDatasetStore(t *testing.T) {
	var store DatasetStore
	assert.Nil(t, store.Get())

	first := sampleDataset()
	store.Set(first)
	assert.Same(t, first, store.Get())

	second := twoCounties()
	store.Set(second)
	assert.Same(t, second, store.Get())
	assert.Equal(t, 6, first.Len())
}

func TestDataset_DateBounds(t *testing.T) {
	first, last, ok := sampleDataset().DateBounds()
	require.True(t, ok)
	assert.Equal(t, day("2024-01-01"), first)
	assert.Equal(t, day("2024-01-05"), last)

	_, _, ok = NewDataset("empty", nil).DateBounds()
	assert.False(t, ok)
}
