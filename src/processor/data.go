// data.go
package processor

import (
	"sync"
	"time"

	"AirQualityDashboard/src/utils"
)

// 数据列名，与上游数据提供方约定，不作为配置项
const (
	ColCounty        = "COUNTY"
	ColDate          = "Date"
	ColConcentration = "Daily_Mean_PM2_5_Concentration"
	ColAQI           = "DAILY_AQI_VALUE"
	ColLatitude      = "SITE_LATITUDE"
	ColLongitude     = "SITE_LONGITUDE"
	ColSiteName      = "Site_Name"
)

// Columns 导出与校验使用的列顺序
var Columns = []string{
	ColCounty,
	ColDate,
	ColConcentration,
	ColAQI,
	ColLatitude,
	ColLongitude,
	ColSiteName,
}

// NumericColumns 按数值处理的列
var NumericColumns = []string{ColConcentration, ColAQI, ColLatitude, ColLongitude}

// Record 一条监测记录
type Record struct {
	County        string    `json:"county"`
	Date          time.Time `json:"date"`
	Concentration float64   `json:"concentration"`
	AQI           float64   `json:"aqi"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	SiteName      string    `json:"site_name"`
}

// Dataset 加载后不可变的记录序列
type Dataset struct {
	name     string
	source   string
	records  []Record
	rejected []*ParseError
	loadedAt time.Time
}

// NewDataset 复制 records，调用方之后对切片的修改不会影响数据集
// 日期只保留到天
func NewDataset(name string, records []Record) *Dataset {
	rs := make([]Record, len(records))
	copy(rs, records)
	for i := range rs {
		rs[i].Date = utils.TruncateDay(rs[i].Date)
	}
	return &Dataset{
		name:     name,
		records:  rs,
		loadedAt: time.Now(),
	}
}

func (d *Dataset) Name() string        { return d.name }
func (d *Dataset) Source() string      { return d.source }
func (d *Dataset) Len() int            { return len(d.records) }
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

// WithSource 返回记录了来源文件的副本
func (d *Dataset) WithSource(source string) *Dataset {
	cp := *d
	cp.source = source
	return &cp
}

// WithRejected 返回追加了隔离行的副本
func (d *Dataset) WithRejected(rejected []*ParseError) *Dataset {
	if len(rejected) == 0 {
		return d
	}
	cp := *d
	cp.rejected = append(append([]*ParseError(nil), d.rejected...), rejected...)
	return &cp
}

// Records 返回记录的副本
func (d *Dataset) Records() []Record {
	rs := make([]Record, len(d.records))
	copy(rs, d.records)
	return rs
}

// Rejected 隔离模式下被丢弃的行
func (d *Dataset) Rejected() []*ParseError {
	return d.rejected
}

// DateBounds 数据集中最早和最晚的日期
func (d *Dataset) DateBounds() (first, last time.Time, ok bool) {
	for i, r := range d.records {
		if i == 0 || r.Date.Before(first) {
			first = r.Date
		}
		if i == 0 || r.Date.After(last) {
			last = r.Date
		}
	}
	return first, last, len(d.records) > 0
}

// DatasetStore 持有当前会话的数据集，并提供线程安全访问
// 重新加载时整体替换，已经发出的 *Dataset 不会被修改
type DatasetStore struct {
	ds *Dataset
	mu sync.RWMutex
}

// Get 获取当前数据集，尚未加载时返回nil
func (s *DatasetStore) Get() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

// Set 替换当前数据集
func (s *DatasetStore) Set(ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ds = ds
}
