// reader.go
package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"AirQualityDashboard/src/processor"

	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Options 数据文件读取配置
type Options struct {
	Name            string
	Format          string // csv / xlsx，为空时按扩展名判断
	SheetName       string // xlsx 工作表，为空时取第一个
	HeaderRow       int    // xlsx 表头所在行(从1开始)，默认1
	Encoding        string // csv 文本编码，默认utf-8
	SkipInvalidRows bool
}

// LoadFile 按格式读取数据文件
func LoadFile(path string, opts Options) (*processor.Dataset, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	var (
		ds  *processor.Dataset
		err error
	)
	switch format {
	case "csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open csv file: %w", openErr)
		}
		defer f.Close()
		ds, err = LoadCSV(f, opts)
	case "xlsx":
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("failed to open xlsx file: %w", readErr)
		}
		ds, err = ReadXLSX(data, opts)
	default:
		return nil, fmt.Errorf("unsupported file format %q (want csv or xlsx)", format)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return ds.WithSource(path), nil
}

// NewDecodingReader 把输入转成UTF-8，并去掉BOM
func NewDecodingReader(r io.Reader, encoding string) (io.Reader, error) {
	if encoding == "" {
		encoding = "utf-8"
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", encoding, err)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// LoadCSV 读取带表头的CSV
func LoadCSV(r io.Reader, opts Options) (*processor.Dataset, error) {
	decoded, err := NewDecodingReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		// 空文件按缺列处理
		return processor.ParseRecords(nil, nil, loadOptions(opts, 1, nil))
	}
	if err != nil {
		return nil, csvError(err)
	}
	header = append([]string(nil), header...)

	var (
		rows     [][]string
		lines    []int
		rejected []*processor.ParseError
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			perr := csvError(err)
			// 列数不一致的行可以隔离，其他CSV语法错误直接失败
			if opts.SkipInvalidRows && errors.Is(err, csv.ErrFieldCount) {
				rejected = append(rejected, perr)
				continue
			}
			return nil, perr
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, row)
		lines = append(lines, line)
	}

	ds, err := processor.ParseRecords(header, rows, loadOptions(opts, 1, lines))
	if err != nil {
		return nil, err
	}
	return ds.WithRejected(rejected), nil
}

func csvError(err error) *processor.ParseError {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &processor.ParseError{
			Line: pe.StartLine,
			Err:  fmt.Errorf("%w: %v", processor.ErrMalformedRow, pe.Err),
		}
	}
	return &processor.ParseError{Line: 1, Err: fmt.Errorf("%w: %v", processor.ErrMalformedRow, err)}
}

func loadOptions(opts Options, headerLine int, lines []int) processor.LoadOptions {
	return processor.LoadOptions{
		Name:            opts.Name,
		HeaderLine:      headerLine,
		SkipInvalidRows: opts.SkipInvalidRows,
		RowLines:        lines,
	}
}

// ReadXLSX 读取xlsx数据
func ReadXLSX(data []byte, opts Options) (*processor.Dataset, error) {

	// 1. 使用tealeg/xlsx打开Excel文件
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("xlsx open file false: %w", err)
	}

	// 2. 获取工作表
	if len(xlFile.Sheets) == 0 {
		return nil, fmt.Errorf("excel文件中没有工作表")
	}
	sheet := xlFile.Sheets[0]
	if opts.SheetName != "" {
		s, ok := xlFile.Sheet[opts.SheetName]
		if !ok {
			return nil, fmt.Errorf("excel文件中没有工作表 %q", opts.SheetName)
		}
		sheet = s
	}

	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}

	// 3. 转换为记录
	header, rows, lines := sheetRows(sheet, headerRow)
	lo := loadOptions(opts, headerRow, lines)
	lo.ExcelDates = true
	return processor.ParseRecords(header, rows, lo)
}

// sheetRows 取出表头和数据行，跳过全空行
func sheetRows(sheet *xlsx.Sheet, headerRow int) (header []string, rows [][]string, lines []int) {
	if len(sheet.Rows) < headerRow {
		return nil, nil, nil
	}

	header = cellValues(sheet.Rows[headerRow-1])
	for i, row := range sheet.Rows[headerRow:] {
		values := cellValues(row)
		if isBlank(values) {
			continue
		}
		rows = append(rows, values)
		lines = append(lines, headerRow+1+i)
	}
	return header, rows, lines
}

func cellValues(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	values := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		if cell != nil {
			values[i] = cell.Value
		}
	}
	return values
}

func isBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
