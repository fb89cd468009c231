// monitor.go
package file

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监听数据文件，文件更新后回调
// 监听的是所在目录，编辑器先写临时文件再改名的情况也能捕获
type FileMonitor struct {
	watchDir string
	target   string
	watcher  *fsnotify.Watcher
	errs     <-chan error
	lastMod  time.Time
	mu       sync.Mutex

	// OnError 监听出错时回调，错误不会终止 Watch
	OnError func(error)
}

func NewFileMonitor(path string) (*FileMonitor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	m := &FileMonitor{
		watchDir: dir,
		target:   abs,
		watcher:  watcher,
		errs:     watcher.Errors,
	}
	if info, err := os.Stat(abs); err == nil {
		m.lastMod = info.ModTime()
	}
	return m, nil
}

// Watch 阻塞直到Close被调用
func (m *FileMonitor) Watch(handler func(string)) error {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			info, err := os.Stat(m.target)
			if err != nil {
				continue
			}

			m.mu.Lock()
			changed := info.ModTime().After(m.lastMod)
			if changed {
				m.lastMod = info.ModTime()
			}
			m.mu.Unlock()

			if changed {
				handler(m.target)
			}
		case err, ok := <-m.errs:
			if !ok {
				return nil
			}
			// 如inotify队列溢出，之后的事件仍可继续处理
			if m.OnError != nil {
				m.OnError(err)
			}
		}
	}
}

func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
