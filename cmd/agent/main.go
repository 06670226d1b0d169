package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hedra-avatar-agent/internal/app/server"
	redisdb "hedra-avatar-agent/internal/db/redis"
	"hedra-avatar-agent/internal/domain/vad/silero_vad"
	log "hedra-avatar-agent/logger"

	"github.com/spf13/viper"
)

func main() {
	configFile := flag.String("c", "config/config.yaml", "配置文件路径")
	flag.Parse()

	if *configFile == "" {
		fmt.Println("配置文件路径不能为空")
		os.Exit(1)
	}

	bootstrap, voices, err := Init(*configFile)
	if err != nil {
		fmt.Printf("初始化失败: %+v\n", err)
		os.Exit(1)
	}

	if viper.GetBool("server.pprof.enable") {
		pprofPort := viper.GetInt("server.pprof.port")
		go func() {
			log.Infof("启动pprof服务，端口: %d", pprofPort)
			if err := http.ListenAndServe(fmt.Sprintf(":%d", pprofPort), nil); err != nil {
				log.Errorf("pprof服务启动失败: %v", err)
			}
		}()
	}

	appInstance, err := server.NewApp(voices, bootstrap.LiveKit)
	if err != nil {
		log.Fatalf("创建服务失败: %v", err)
	}
	go func() {
		if err := appInstance.Run(); err != nil {
			log.Fatalf("服务异常退出: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Info("服务器已启动，按 Ctrl+C 退出")
	<-quit

	log.Info("正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := appInstance.Shutdown(ctx); err != nil {
		log.Warnf("关闭服务失败: %v", err)
	}
	silero_vad.ClosePool()
	_ = redisdb.Close()
	log.Info("服务器已关闭")
}
