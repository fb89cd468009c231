package processor

import (
	"bytes"
	"fmt"
	"io"

	"AirQualityDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// CSVContentType 导出文件的MIME类型
const (
	CSVContentType  = "text/csv"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportFileName 导出文件名，例如 filtered_alabama_NO2_data.csv
func ExportFileName(dataset, ext string) string {
	return fmt.Sprintf("filtered_%s_data.%s", dataset, ext)
}

// Frame 把过滤结果转换为DataFrame，所有列按规范文本保存
func Frame(v *FilteredView) dataframe.DataFrame {
	n := len(v.records)
	cols := make(map[string][]string, len(Columns))
	for _, c := range Columns {
		cols[c] = make([]string, n)
	}
	for i, r := range v.records {
		cols[ColCounty][i] = r.County
		cols[ColDate][i] = utils.FormatDate(r.Date)
		cols[ColConcentration][i] = utils.FormatFloat(r.Concentration)
		cols[ColAQI][i] = utils.FormatFloat(r.AQI)
		cols[ColLatitude][i] = utils.FormatFloat(r.Latitude)
		cols[ColLongitude][i] = utils.FormatFloat(r.Longitude)
		cols[ColSiteName][i] = r.SiteName
	}

	seriesList := make([]series.Series, len(Columns))
	for i, c := range Columns {
		seriesList[i] = series.New(cols[c], series.String, c)
	}
	return dataframe.New(seriesList...)
}

// WriteCSV 以UTF-8、逗号分隔、带表头的形式写出过滤结果
func WriteCSV(v *FilteredView, w io.Writer) error {
	df := Frame(v)
	if df.Err != nil {
		return fmt.Errorf("build frame: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Serialize 过滤结果的CSV字节，空视图只有表头
func Serialize(v *FilteredView) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(v, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteXLSX 以xlsx格式写出过滤结果，数值列写为数字单元格
func WriteXLSX(v *FilteredView, w io.Writer) error {
	df := Frame(v)
	if df.Err != nil {
		return fmt.Errorf("build frame: %w", df.Err)
	}
	// excel 工作表名最长31个字符
	sheet := []rune(v.name)
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	return utils.WriteExcel(df, string(sheet), NumericColumns, w)
}
