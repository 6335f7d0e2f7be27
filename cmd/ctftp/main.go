package main

import (
	"fmt"
	"os"

	"github.com/seifzadeh/ctftp/internal/config"
	"github.com/seifzadeh/ctftp/internal/ctftplog"
	"github.com/seifzadeh/ctftp/internal/server"
)

const defaultConfigPath = "ctftp.conf"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := defaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ctftp: %v\n", err)
		return 1
	}

	log, err := ctftplog.New(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ctftp: failed to open log file: %v\n", err)
		return 1
	}

	log.Infof("starting with root_dir=%s, %d listener(s)", cfg.RootDir, len(cfg.Listeners))

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Errorf("startup failed: %v", err)
		return 1
	}

	srv.Run()
	return 0
}
