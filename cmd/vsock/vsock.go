package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"netsock/pkg/cyclebuf"
	"netsock/pkg/netsocket"
	"netsock/pkg/sockconfig"
)

func main() {
	// 0. read the optional config file from the command line
	arg := flag.String("config", "", "specify the config file")
	flag.Parse()

	config := sockconfig.Default()
	if *arg != "" {
		var err error
		config, err = sockconfig.ParseConfig(*arg)
		if err != nil {
			fmt.Println(err)
			fmt.Println("usage: vsock [--config <file>]")
			os.Exit(1)
		}
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(config.LogLevel)
	logger, err := zc.Build()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer logger.Sync()
	cyclebuf.SetLogger(logger)

	// 1. init the socket stack, open configured listeners and connections
	stack := netsocket.NewStack(config, logger)
	for _, port := range config.Listen {
		l, err := stack.Listen(port)
		if err != nil {
			logger.Fatal("listen failed", zap.Uint16("port", port), zap.Error(err))
		}
		go l.AcceptLoop(nil)
	}
	for _, addr := range config.Connect {
		if _, err := stack.Connect(addr); err != nil {
			logger.Error("connect failed", zap.Stringer("addr", addr), zap.Error(err))
		}
	}

	// 2. run the repl until EOF
	if err := netsocket.SocketRepl(stack).Run(); err != nil {
		logger.Error("repl ended", zap.Error(err))
	}

	if err := stack.Shutdown(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
