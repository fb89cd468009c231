package utils

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

// DateLayout 导出时统一使用的日期格式
const DateLayout = "2006-01-02"

// 输入数据中允许出现的日期格式，按顺序尝试
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
}

var excelSerial = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// ParseDate 解析日期字符串，只保留日历日期(UTC零点)
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format %q", s)
}

// ExcelSerialToDate excel序列号日期转time.Time
func ExcelSerialToDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !excelSerial.MatchString(s) {
		return time.Time{}, false
	}
	excelDays, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, false
	}

	// 1899-12-30 作为基准已经吸收了1900年闰年错误
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(excelDays)), true
}

// TruncateDay 去掉时分秒
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatFloat 数值的规范文本形式，保证解析后得到同一个值
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseFloat 解析数值，拒绝 NaN 和 Inf
func ParseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// WriteExcel 将DataFrame写成xlsx
// numeric 中的列按数值写入单元格，其他列按文本写入
func WriteExcel(df dataframe.DataFrame, sheetName string, numeric []string, w io.Writer) error {
	for _, col := range numeric {
		if !HasColumn(df, col) {
			return fmt.Errorf("数值列 %s 不存在", col)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if sheetName != "" && sheetName != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheetName); err != nil {
			return fmt.Errorf("设置工作表名称失败: %w", err)
		}
	} else {
		sheetName = "Sheet1"
	}

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	// 写入数据
	for colIdx, colName := range colNames {
		col := df.Col(colName).Records()
		asNumber := Contains(numeric, colName)
		for rowIdx, raw := range col {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			var val interface{} = raw
			if asNumber {
				if v, err := ParseFloat(raw); err == nil {
					val = v
				}
			}
			if err := f.SetCellValue(sheetName, cell, val); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}
