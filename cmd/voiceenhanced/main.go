package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voiceenhance/pkg/config"
	"github.com/xaionaro-go/voiceenhance/pkg/server"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	dotEnvPath := pflag.String("env-file", ".env", "path to a .env file with VOICEENHANCE_* variables (skipped if missing)")
	listenAddr := pflag.String("listen-addr", "", "override the address to listen for websocket connections at")
	fftBackend := pflag.String("fft-backend", "", "override the FFT backend")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	printConfig := pflag.Bool("print-config", false, "print the resolved config and exit")
	pflag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		assertNoError(err)
	}
	assertNoError(config.LoadDotEnv(*dotEnvPath))
	assertNoError(cfg.ApplyEnv(nil))
	if pflag.CommandLine.Changed("log-level") {
		cfg.LogLevel = loggerLevel.String()
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *fftBackend != "" {
		cfg.Denoise.FFTBackend = *fftBackend
	}
	assertNoError(cfg.Validate())

	if *printConfig {
		b, err := cfg.Bytes()
		assertNoError(err)
		fmt.Print(string(b))
		return
	}

	level, err := cfg.LoggerLevel()
	assertNoError(err)
	l := logrus.Default().WithLevel(level)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if level < logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Debugf(ctx, "config: %s", cfg.Dump())

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	srv, err := server.New(ctx, cfg)
	assertNoError(err)
	assertNoError(srv.ListenAndServe(ctx))
	logger.Infof(ctx, "served %d sessions", srv.Stats().TotalSessions)
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
