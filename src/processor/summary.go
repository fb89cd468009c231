package processor

import (
	"math"
	"sort"

	"AirQualityDashboard/src/utils"

	"github.com/go-gota/gota/series"
)

// NumericSummary 数值列的描述统计，空视图时除Count外均为nil
type NumericSummary struct {
	Field string   `json:"field"`
	Count int      `json:"count"`
	Mean  *float64 `json:"mean"`
	Std   *float64 `json:"std"`
	Min   *float64 `json:"min"`
	P25   *float64 `json:"p25"`
	P50   *float64 `json:"p50"`
	P75   *float64 `json:"p75"`
	Max   *float64 `json:"max"`
}

// CategoricalSummary 文本列的描述统计
type CategoricalSummary struct {
	Field  string  `json:"field"`
	Count  int     `json:"count"`
	Unique int     `json:"unique"`
	Top    *string `json:"top"`
	Freq   int     `json:"freq"`
}

// DateSummary 日期列按文本统计，另外给出首末日期
type DateSummary struct {
	CategoricalSummary
	First *string `json:"first"`
	Last  *string `json:"last"`
}

// SummaryStatistics 过滤结果的汇总
type SummaryStatistics struct {
	Rows        int                  `json:"rows"`
	Numeric     []NumericSummary     `json:"numeric"`
	Categorical []CategoricalSummary `json:"categorical"`
	Date        DateSummary          `json:"date"`
}

// NumericField 按列名查找数值统计
func (s SummaryStatistics) NumericField(name string) (NumericSummary, bool) {
	for _, n := range s.Numeric {
		if n.Field == name {
			return n, true
		}
	}
	return NumericSummary{}, false
}

// CategoricalField 按列名查找文本统计
func (s SummaryStatistics) CategoricalField(name string) (CategoricalSummary, bool) {
	for _, c := range s.Categorical {
		if c.Field == name {
			return c, true
		}
	}
	return CategoricalSummary{}, false
}

// Summarize 计算过滤结果的描述统计，空视图不报错
func Summarize(v *FilteredView) SummaryStatistics {
	n := len(v.records)
	conc := make([]float64, n)
	aqi := make([]float64, n)
	lat := make([]float64, n)
	lon := make([]float64, n)
	counties := make([]string, n)
	sites := make([]string, n)
	dates := make([]string, n)
	for i, r := range v.records {
		conc[i] = r.Concentration
		aqi[i] = r.AQI
		lat[i] = r.Latitude
		lon[i] = r.Longitude
		counties[i] = r.County
		sites[i] = r.SiteName
		dates[i] = utils.FormatDate(r.Date)
	}

	stats := SummaryStatistics{
		Rows: n,
		Numeric: []NumericSummary{
			summarizeNumeric(ColConcentration, conc),
			summarizeNumeric(ColAQI, aqi),
			summarizeNumeric(ColLatitude, lat),
			summarizeNumeric(ColLongitude, lon),
		},
		Categorical: []CategoricalSummary{
			summarizeCategorical(ColCounty, counties),
			summarizeCategorical(ColSiteName, sites),
		},
		Date: DateSummary{CategoricalSummary: summarizeCategorical(ColDate, dates)},
	}

	if n > 0 {
		// ISO日期的字典序就是时间顺序
		sorted := append([]string(nil), dates...)
		sort.Strings(sorted)
		stats.Date.First = &sorted[0]
		stats.Date.Last = &sorted[n-1]
	}
	return stats
}

func summarizeNumeric(field string, values []float64) NumericSummary {
	out := NumericSummary{Field: field, Count: len(values)}
	if len(values) == 0 {
		return out
	}

	s := series.New(values, series.Float, field)
	out.Mean = finite(s.Mean())
	out.Std = finite(s.StdDev())
	out.Min = finite(s.Min())
	out.Max = finite(s.Max())

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out.P25 = finite(Percentile(sorted, 0.25))
	out.P50 = finite(Percentile(sorted, 0.50))
	out.P75 = finite(Percentile(sorted, 0.75))
	return out
}

func summarizeCategorical(field string, values []string) CategoricalSummary {
	out := CategoricalSummary{Field: field, Count: len(values)}
	if len(values) == 0 {
		return out
	}

	counts := make(map[string]int, len(values))
	top, freq := "", 0
	for _, v := range values {
		counts[v]++
	}
	// 频次相同时取最先出现的值
	for _, v := range values {
		if counts[v] > freq {
			top, freq = v, counts[v]
		}
	}
	out.Unique = len(counts)
	out.Top = &top
	out.Freq = freq
	return out
}

// Percentile 对已排序数据做线性插值分位数，位置为 p*(n-1)
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
