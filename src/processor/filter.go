package processor

import (
	"sort"
	"time"

	"AirQualityDashboard/src/utils"
)

// DateRange 闭区间 [Start, End]，按日历日期比较
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange 构造区间，两端都截断到日期
func NewDateRange(start, end time.Time) *DateRange {
	return &DateRange{Start: utils.TruncateDay(start), End: utils.TruncateDay(end)}
}

// DateRangeFromSelection 用界面选择的日期列表构造区间
// 按字面取第一个和最后一个元素，不做排序；Start 晚于 End 时过滤结果为空
func DateRangeFromSelection(dates []time.Time) *DateRange {
	if len(dates) == 0 {
		return nil
	}
	return NewDateRange(dates[0], dates[len(dates)-1])
}

// Contains 判断日期是否落在区间内(含两端)
func (r *DateRange) Contains(t time.Time) bool {
	d := utils.TruncateDay(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// FilterCriteria 过滤条件
// Categories 为空表示不限制县，DateRange 为nil表示不限制日期
type FilterCriteria struct {
	Categories []string
	DateRange  *DateRange
}

// Match 两个条件独立判断后取与
func (c FilterCriteria) Match(r Record) bool {
	inCategory := len(c.Categories) == 0 || utils.Contains(c.Categories, r.County)
	inRange := c.DateRange == nil || c.DateRange.Contains(r.Date)
	return inCategory && inRange
}

// FilteredView 数据集按条件过滤后的只读子集
type FilteredView struct {
	name     string
	criteria FilterCriteria
	records  []Record
}

func (v *FilteredView) Name() string             { return v.name }
func (v *FilteredView) Len() int                 { return len(v.records) }
func (v *FilteredView) Criteria() FilterCriteria { return v.criteria }

// Records 返回记录的副本
func (v *FilteredView) Records() []Record {
	rs := make([]Record, len(v.records))
	copy(rs, v.records)
	return rs
}

// ListDistinctCategories 去重后按字母序返回数据集中出现的县
func ListDistinctCategories(ds *Dataset) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range ds.records {
		if _, ok := seen[r.County]; ok {
			continue
		}
		seen[r.County] = struct{}{}
		out = append(out, r.County)
	}
	sort.Strings(out)
	return out
}

// ApplyFilter 按条件选择记录，保持原有顺序
func ApplyFilter(ds *Dataset, c FilterCriteria) *FilteredView {
	view := &FilteredView{
		name:     ds.name,
		criteria: c,
		records:  make([]Record, 0, len(ds.records)),
	}
	for _, r := range ds.records {
		if c.Match(r) {
			view.records = append(view.records, r)
		}
	}
	return view
}
