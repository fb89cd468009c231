package processor

import (
	"sort"

	"AirQualityDashboard/src/utils"
)

// SeriesPoint 时间序列上的一个点
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// TimeSeries 一个县的浓度时间序列
type TimeSeries struct {
	County string        `json:"county"`
	Points []SeriesPoint `json:"points"`
}

// GeoPoint 一条记录在地图上的位置
type GeoPoint struct {
	SiteName      string  `json:"site_name"`
	County        string  `json:"county"`
	Date          string  `json:"date"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Concentration float64 `json:"concentration"`
}

// BoxStats 箱线图统计，须线为1.5倍四分位距内的最远数据点
type BoxStats struct {
	County     string  `json:"county"`
	Count      int     `json:"count"`
	Min        float64 `json:"min"`
	Q1         float64 `json:"q1"`
	Median     float64 `json:"median"`
	Q3         float64 `json:"q3"`
	Max        float64 `json:"max"`
	LowerWhisk float64 `json:"lower_whisker"`
	UpperWhisk float64 `json:"upper_whisker"`
	Outliers   int     `json:"outliers"`
}

// ConcentrationSeries 按县分组的浓度时间序列，县按字母序，点按日期排序
func ConcentrationSeries(v *FilteredView) []TimeSeries {
	groups := groupByCounty(v.records)
	out := make([]TimeSeries, 0, len(groups.order))
	for _, county := range groups.order {
		recs := groups.records[county]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })

		points := make([]SeriesPoint, len(recs))
		for i, r := range recs {
			points[i] = SeriesPoint{Date: utils.FormatDate(r.Date), Value: r.Concentration}
		}
		out = append(out, TimeSeries{County: county, Points: points})
	}
	return out
}

// GeoDistribution 每条记录一个点
func GeoDistribution(v *FilteredView) []GeoPoint {
	out := make([]GeoPoint, len(v.records))
	for i, r := range v.records {
		out[i] = GeoPoint{
			SiteName:      r.SiteName,
			County:        r.County,
			Date:          utils.FormatDate(r.Date),
			Latitude:      r.Latitude,
			Longitude:     r.Longitude,
			Concentration: r.Concentration,
		}
	}
	return out
}

// AQIDistribution 按县统计AQI分布
func AQIDistribution(v *FilteredView) []BoxStats {
	groups := groupByCounty(v.records)
	out := make([]BoxStats, 0, len(groups.order))
	for _, county := range groups.order {
		recs := groups.records[county]
		values := make([]float64, len(recs))
		for i, r := range recs {
			values[i] = r.AQI
		}
		sort.Float64s(values)
		out = append(out, boxStats(county, values))
	}
	return out
}

func boxStats(county string, sorted []float64) BoxStats {
	b := BoxStats{
		County: county,
		Count:  len(sorted),
		Min:    sorted[0],
		Q1:     Percentile(sorted, 0.25),
		Median: Percentile(sorted, 0.50),
		Q3:     Percentile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
	iqr := b.Q3 - b.Q1
	lowFence, highFence := b.Q1-1.5*iqr, b.Q3+1.5*iqr

	b.LowerWhisk, b.UpperWhisk = b.Max, b.Min
	for _, x := range sorted {
		if x < lowFence || x > highFence {
			b.Outliers++
			continue
		}
		if x < b.LowerWhisk {
			b.LowerWhisk = x
		}
		if x > b.UpperWhisk {
			b.UpperWhisk = x
		}
	}
	return b
}

type countyGroups struct {
	order   []string
	records map[string][]Record
}

func groupByCounty(records []Record) countyGroups {
	g := countyGroups{records: make(map[string][]Record)}
	for _, r := range records {
		if _, ok := g.records[r.County]; !ok {
			g.order = append(g.order, r.County)
		}
		g.records[r.County] = append(g.records[r.County], r)
	}
	sort.Strings(g.order)
	return g
}
