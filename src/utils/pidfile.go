package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WritePIDFile 写入当前进程号
func WritePIDFile(path string) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("写入pid文件失败: %w", err)
	}
	return nil
}

// ReadPIDFile 读取 WritePIDFile 写入的进程号
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("读取pid文件失败: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid文件 %s 内容无效: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}
