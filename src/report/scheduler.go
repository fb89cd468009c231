package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"AirQualityDashboard/src/config"
	"AirQualityDashboard/src/datapush"
	"AirQualityDashboard/src/processor"
	"AirQualityDashboard/src/utils"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/robfig/cron"
	"github.com/rs/zerolog"
)

// ErrNoDataset 数据集尚未加载
var ErrNoDataset = errors.New("no dataset loaded")

// Result 一次报表运行的结果，同时作为webhook推送内容
type Result struct {
	RunID       string                      `json:"run_id"`
	Dataset     string                      `json:"dataset"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Counties    []string                    `json:"counties"`
	Start       string                      `json:"start,omitempty"`
	End         string                      `json:"end,omitempty"`
	Rows        int                         `json:"rows"`
	Files       []string                    `json:"files"`
	Summary     processor.SummaryStatistics `json:"summary"`
}

// Scheduler 按cron表达式定时导出过滤结果
type Scheduler struct {
	cfg    config.ReportConfig
	store  *processor.DatasetStore
	pusher *datapush.Pusher
	logger zerolog.Logger
	now    func() time.Time
}

// NewScheduler webhook_url为空时不推送
func NewScheduler(cfg config.ReportConfig, store *processor.DatasetStore, logger zerolog.Logger) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	if cfg.WebhookURL != "" {
		s.pusher = datapush.NewPusher(cfg.WebhookURL, cfg.WebhookRetries, cfg.WebhookInterval)
	}
	return s
}

// Criteria 配置的县 + 截至数据集最后日期的 last_days 天
func (s *Scheduler) Criteria(ds *processor.Dataset) processor.FilterCriteria {
	c := processor.FilterCriteria{Categories: s.cfg.Counties}
	if s.cfg.LastDays <= 0 {
		return c
	}
	_, last, ok := ds.DateBounds()
	if !ok {
		return c
	}
	c.DateRange = processor.NewDateRange(last.AddDate(0, 0, -(s.cfg.LastDays - 1)), last)
	return c
}

// Run 注册定时任务并阻塞直到ctx结束
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("报表生成失败")
		}
	})
	if err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}

	c.Start()
	defer c.Stop()
	s.logger.Info().Str("schedule", s.cfg.Schedule).Msg("报表任务已启动")

	<-ctx.Done()
	return nil
}

// RunOnce 生成一次报表
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	ds := s.store.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}

	t1 := s.now()
	criteria := s.Criteria(ds)
	view := processor.ApplyFilter(ds, criteria)

	res := &Result{
		RunID:       uuid.NewString(),
		Dataset:     ds.Name(),
		GeneratedAt: t1,
		Counties:    criteria.Categories,
		Rows:        view.Len(),
		Summary:     processor.Summarize(view),
	}
	if res.Counties == nil {
		res.Counties = []string{}
	}
	if r := criteria.DateRange; r != nil {
		res.Start = utils.FormatDate(r.Start)
		res.End = utils.FormatDate(r.End)
	}
	log := s.logger.With().Str("run_id", res.RunID).Logger()

	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	prefix := filepath.Join(s.cfg.OutputDir, t1.Format("20060102-150405")+"_")

	csvPath := prefix + processor.ExportFileName(ds.Name(), "csv")
	if s.cfg.Gzip {
		csvPath += ".gz"
	}
	if err := writeFile(csvPath, func(w io.Writer) error {
		if !s.cfg.Gzip {
			return processor.WriteCSV(view, w)
		}
		zw := gzip.NewWriter(w)
		if err := processor.WriteCSV(view, zw); err != nil {
			return err
		}
		return zw.Close()
	}); err != nil {
		return nil, err
	}
	res.Files = append(res.Files, csvPath)

	if s.cfg.XLSX {
		xlsxPath := prefix + processor.ExportFileName(ds.Name(), "xlsx")
		if err := writeFile(xlsxPath, func(w io.Writer) error {
			return processor.WriteXLSX(view, w)
		}); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, xlsxPath)
	}

	log.Info().
		Int("rows", res.Rows).
		Strs("files", res.Files).
		Dur("elapsed", time.Since(t1)).
		Msg("报表已生成")

	if s.pusher != nil {
		if err := s.pusher.Push(ctx, res); err != nil {
			return res, fmt.Errorf("推送报表摘要失败: %w", err)
		}
		if s.cfg.WebhookAttach {
			for _, f := range res.Files {
				if err := s.pusher.Upload(ctx, f); err != nil {
					return res, fmt.Errorf("上传报表文件失败: %w", err)
				}
			}
		}
		log.Debug().Str("url", s.cfg.WebhookURL).Msg("报表已推送")
	}
	return res, nil
}

// writeFile 先写临时文件再改名
func writeFile(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("写入 %s 失败: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
