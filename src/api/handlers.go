package api

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"AirQualityDashboard/src/processor"
	"AirQualityDashboard/src/utils"

	"github.com/gofiber/fiber/v2"
)

// 返回给前端的被隔离行最多条数
const maxRejectedShown = 20

var errNoDataset = fiber.NewError(fiber.StatusServiceUnavailable, "no dataset loaded")

// RecordResponse 单条记录，日期按 YYYY-MM-DD 输出
type RecordResponse struct {
	County        string  `json:"county"`
	Date          string  `json:"date"`
	Concentration float64 `json:"concentration"`
	AQI           float64 `json:"aqi"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	SiteName      string  `json:"site_name"`
}

// CriteriaResponse 回显生效的过滤条件
type CriteriaResponse struct {
	Counties []string `json:"counties"`
	Start    string   `json:"start,omitempty"`
	End      string   `json:"end,omitempty"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	uptime := time.Since(startTime)
	return c.JSON(fiber.Map{
		"status":         "ok",
		"time":           time.Now().UTC().Format(time.RFC3339),
		"uptime":         uptime.String(),
		"dataset_loaded": s.store.Get() != nil,
	})
}

func (s *Server) handleDataset(c *fiber.Ctx) error {
	ds := s.store.Get()
	if ds == nil {
		return errNoDataset
	}

	rejected := ds.Rejected()
	shown := make([]string, 0, len(rejected))
	for i, e := range rejected {
		if i == maxRejectedShown {
			break
		}
		shown = append(shown, e.Error())
	}

	resp := fiber.Map{
		"name":          ds.Name(),
		"source":        ds.Source(),
		"rows":          ds.Len(),
		"rejected_rows": len(rejected),
		"rejected":      shown,
		"loaded_at":     ds.LoadedAt().UTC().Format(time.RFC3339),
		"columns":       processor.Columns,
		"county_count":  len(processor.ListDistinctCategories(ds)),
	}
	if first, last, ok := ds.DateBounds(); ok {
		resp["first_date"] = utils.FormatDate(first)
		resp["last_date"] = utils.FormatDate(last)
	}
	return c.JSON(resp)
}

func (s *Server) handleCounties(c *fiber.Ctx) error {
	ds := s.store.Get()
	if ds == nil {
		return errNoDataset
	}
	counties := processor.ListDistinctCategories(ds)
	return c.JSON(fiber.Map{
		"counties": counties,
		"count":    len(counties),
	})
}

func (s *Server) handleRecords(c *fiber.Ctx) error {
	view, err := s.view(c)
	if err != nil {
		return err
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
		}
	}

	records := view.Records()
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	out := make([]RecordResponse, len(records))
	for i, r := range records {
		out[i] = recordResponse(r)
	}

	return c.JSON(fiber.Map{
		"dataset":  view.Name(),
		"criteria": criteriaResponse(view.Criteria()),
		"total":    view.Len(),
		"count":    len(out),
		"records":  out,
	})
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	view, err := s.view(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"dataset":  view.Name(),
		"criteria": criteriaResponse(view.Criteria()),
		"summary":  processor.Summarize(view),
	})
}

func (s *Server) handleTimeSeries(c *fiber.Ctx) error {
	view, err := s.view(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"field":  processor.ColConcentration,
		"series": processor.ConcentrationSeries(view),
	})
}

func (s *Server) handleGeo(c *fiber.Ctx) error {
	view, err := s.view(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"points": processor.GeoDistribution(view),
	})
}

func (s *Server) handleAQI(c *fiber.Ctx) error {
	view, err := s.view(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"field": processor.ColAQI,
		"boxes": processor.AQIDistribution(view),
	})
}

func (s *Server) handleExportCSV(c *fiber.Ctx) error {
	view, err := s.view(c)
	if err != nil {
		return err
	}
	data, err := processor.Serialize(view)
	if err != nil {
		return err
	}
	c.Attachment(processor.ExportFileName(view.Name(), "csv"))
	c.Set(fiber.HeaderContentType, processor.CSVContentType)
	return c.Send(data)
}

func (s *Server) handleExportXLSX(c *fiber.Ctx) error {
	view, err := s.view(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := processor.WriteXLSX(view, &buf); err != nil {
		return err
	}
	c.Attachment(processor.ExportFileName(view.Name(), "xlsx"))
	c.Set(fiber.HeaderContentType, processor.XLSXContentType)
	return c.Send(buf.Bytes())
}

// handleLogs 以chunked文本持续输出日志，直到客户端断开、日志关闭或服务停止
func (s *Server) handleLogs(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	logs, done := s.logs, s.done
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		sub := logs.Subscribe()
		defer logs.Unsubscribe(sub)

		for {
			select {
			case <-done:
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				if _, err := fmt.Fprintln(w, msg); err != nil {
					return
				}
				// 刷新失败说明客户端已断开
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

// view 按请求参数过滤当前数据集
func (s *Server) view(c *fiber.Ctx) (*processor.FilteredView, error) {
	ds := s.store.Get()
	if ds == nil {
		return nil, errNoDataset
	}
	criteria, err := parseCriteria(c, ds)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return processor.ApplyFilter(ds, criteria), nil
}

// parseCriteria 解析过滤参数
//
//	county  可重复，也可以逗号分隔
//	date    可重复，按字面取第一个和最后一个作为区间
//	start / end  区间两端，缺省一端时使用数据集的首末日期
func parseCriteria(c *fiber.Ctx, ds *processor.Dataset) (processor.FilterCriteria, error) {
	var criteria processor.FilterCriteria
	args := c.Context().QueryArgs()

	for _, raw := range args.PeekMulti("county") {
		for _, county := range strings.Split(string(raw), ",") {
			if county = strings.TrimSpace(county); county != "" {
				criteria.Categories = append(criteria.Categories, county)
			}
		}
	}

	var dates []time.Time
	for _, raw := range args.PeekMulti("date") {
		d, err := utils.ParseDate(string(raw))
		if err != nil {
			return criteria, fmt.Errorf("invalid date %q", string(raw))
		}
		dates = append(dates, d)
	}

	startRaw, endRaw := c.Query("start"), c.Query("end")
	if len(dates) > 0 && (startRaw != "" || endRaw != "") {
		return criteria, errors.New("date cannot be combined with start/end")
	}
	if len(dates) > 0 {
		criteria.DateRange = processor.DateRangeFromSelection(dates)
		return criteria, nil
	}
	if startRaw == "" && endRaw == "" {
		return criteria, nil
	}

	first, last, _ := ds.DateBounds()
	start, end := first, last
	if startRaw != "" {
		d, err := utils.ParseDate(startRaw)
		if err != nil {
			return criteria, fmt.Errorf("invalid start %q", startRaw)
		}
		start = d
	}
	if endRaw != "" {
		d, err := utils.ParseDate(endRaw)
		if err != nil {
			return criteria, fmt.Errorf("invalid end %q", endRaw)
		}
		end = d
	}
	criteria.DateRange = processor.NewDateRange(start, end)
	return criteria, nil
}

func recordResponse(r processor.Record) RecordResponse {
	return RecordResponse{
		County:        r.County,
		Date:          utils.FormatDate(r.Date),
		Concentration: r.Concentration,
		AQI:           r.AQI,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		SiteName:      r.SiteName,
	}
}

func criteriaResponse(c processor.FilterCriteria) CriteriaResponse {
	resp := CriteriaResponse{Counties: c.Categories}
	if resp.Counties == nil {
		resp.Counties = []string{}
	}
	if c.DateRange != nil {
		resp.Start = utils.FormatDate(c.DateRange.Start)
		resp.End = utils.FormatDate(c.DateRange.End)
	}
	return resp
}
