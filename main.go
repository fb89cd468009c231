// 向正在运行的仪表盘服务发送 SIGHUP，触发重新加载数据并重新打开日志文件
package main

import (
	"flag"
	"log"
	"syscall"

	"AirQualityDashboard/src/config"
	"AirQualityDashboard/src/utils"

	"github.com/joho/godotenv"
)

func main() {
	pidFile := flag.String("pid", "", "pid文件路径，默认读取配置中的 data.pid_file")
	flag.Parse()

	path := *pidFile
	if path == "" {
		_ = godotenv.Load()
		cfg, err := config.LoadConfig("./config", "config.json")
		if err != nil {
			log.Fatal("Failed to load config: ", err)
		}
		path = cfg.Data.PIDFile
	}

	pid, err := utils.ReadPIDFile(path)
	if err != nil {
		log.Fatal(err)
	}

	if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
		log.Fatal("Failed to send SIGHUP:", err)
	}
	log.Printf("已向进程 %d 发送 SIGHUP", pid)
}
