package main

import (
	"sync"
	"time"

	"AirQualityDashboard/src/config"
	"AirQualityDashboard/src/datasource/file"
	"AirQualityDashboard/src/processor"

	"github.com/rs/zerolog"
)

// datasetLoader 读取数据文件并替换当前数据集，失败时保留旧数据
type datasetLoader struct {
	cfg    config.DataConfig
	store  *processor.DatasetStore
	logger zerolog.Logger
	mu     sync.Mutex // 串行化文件监控和SIGHUP触发的加载
}

func (l *datasetLoader) Load() (*processor.Dataset, error) {
	return file.LoadFile(l.cfg.Path, file.Options{
		Name:            l.cfg.Name,
		Format:          l.cfg.Format,
		SheetName:       l.cfg.SheetName,
		HeaderRow:       l.cfg.HeaderRow,
		Encoding:        l.cfg.Encoding,
		SkipInvalidRows: l.cfg.SkipInvalidRows,
	})
}

// Reload 加载成功返回true
func (l *datasetLoader) Reload(reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	t1 := time.Now()
	ds, err := l.Load()
	if err != nil {
		l.logger.Error().Err(err).Str("reason", reason).Str("path", l.cfg.Path).Msg("数据加载失败，保留当前数据集")
		return false
	}
	l.store.Set(ds)

	event := l.logger.Info()
	if n := len(ds.Rejected()); n > 0 {
		event = l.logger.Warn().Int("rejected", n)
	}
	event.
		Str("reason", reason).
		Str("dataset", ds.Name()).
		Int("rows", ds.Len()).
		Dur("elapsed", time.Since(t1)).
		Msg("数据集已加载")
	return true
}
