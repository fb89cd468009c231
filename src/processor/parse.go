package processor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"AirQualityDashboard/src/utils"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmptyValue    = errors.New("empty value")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidNumber = errors.New("invalid number")
	ErrMalformedRow  = errors.New("malformed row")
)

// ParseError 输入数据结构不合法时返回
// Line 为源文件中的行号(从1开始)，缺列时为表头所在行
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "line %d", e.Line)
	if e.Column != "" {
		fmt.Fprintf(&b, ", column %q", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, ", value %q", e.Value)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadOptions 控制记录解析
type LoadOptions struct {
	Name string
	// HeaderLine 表头在源文件中的行号，默认1
	HeaderLine int
	// SkipInvalidRows 为true时非法行被隔离而不是中断加载，缺列仍然是致命错误
	SkipInvalidRows bool
	// ExcelDates 允许日期列出现Excel序列号
	ExcelDates bool
	// RowLines 每个数据行在源文件中的行号；为空时按表头行号顺延
	RowLines []int
}

// ParseRecords 把表头和数据行转换为带类型的数据集
func ParseRecords(header []string, rows [][]string, opts LoadOptions) (*Dataset, error) {
	headerLine := opts.HeaderLine
	if headerLine <= 0 {
		headerLine = 1
	}

	index, missing := columnIndex(header)
	if missing != "" {
		return nil, &ParseError{Line: headerLine, Column: missing, Err: ErrMissingColumn}
	}

	ds := &Dataset{
		name:     opts.Name,
		records:  make([]Record, 0, len(rows)),
		loadedAt: time.Now(),
	}
	for i, row := range rows {
		line := headerLine + 1 + i
		if i < len(opts.RowLines) {
			line = opts.RowLines[i]
		}
		rec, perr := parseRow(row, index, line, opts.ExcelDates)
		if perr != nil {
			if !opts.SkipInvalidRows {
				return nil, perr
			}
			ds.rejected = append(ds.rejected, perr)
			continue
		}
		ds.records = append(ds.records, rec)
	}
	return ds, nil
}

// columnIndex 返回必需列在表头中的位置，以及第一个缺失的列名
func columnIndex(header []string) (map[string]int, string) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	index := make(map[string]int, len(Columns))
	for _, col := range Columns {
		i, ok := pos[col]
		if !ok {
			return nil, col
		}
		index[col] = i
	}
	return index, ""
}

func parseRow(row []string, index map[string]int, line int, excelDates bool) (Record, *ParseError) {
	var rec Record

	cell := func(col string) (string, *ParseError) {
		i := index[col]
		if i >= len(row) {
			return "", &ParseError{Line: line, Column: col, Err: ErrEmptyValue}
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return "", &ParseError{Line: line, Column: col, Err: ErrEmptyValue}
		}
		return v, nil
	}

	number := func(col string) (float64, *ParseError) {
		raw, perr := cell(col)
		if perr != nil {
			return 0, perr
		}
		v, err := utils.ParseFloat(raw)
		if err != nil {
			return 0, &ParseError{Line: line, Column: col, Value: raw, Err: fmt.Errorf("%w: %v", ErrInvalidNumber, err)}
		}
		return v, nil
	}

	var perr *ParseError
	if rec.County, perr = cell(ColCounty); perr != nil {
		return rec, perr
	}
	if rec.SiteName, perr = cell(ColSiteName); perr != nil {
		return rec, perr
	}

	rawDate, perr := cell(ColDate)
	if perr != nil {
		return rec, perr
	}
	date, err := utils.ParseDate(rawDate)
	if err != nil && excelDates {
		if d, ok := utils.ExcelSerialToDate(rawDate); ok {
			date, err = d, nil
		}
	}
	if err != nil {
		return rec, &ParseError{Line: line, Column: ColDate, Value: rawDate, Err: fmt.Errorf("%w: %v", ErrInvalidDate, err)}
	}
	rec.Date = date

	if rec.Concentration, perr = number(ColConcentration); perr != nil {
		return rec, perr
	}
	if rec.AQI, perr = number(ColAQI); perr != nil {
		return rec, perr
	}
	if rec.Latitude, perr = number(ColLatitude); perr != nil {
		return rec, perr
	}
	if rec.Longitude, perr = number(ColLongitude); perr != nil {
		return rec, perr
	}
	return rec, nil
}
