// Command outbackcdx runs the capture-index HTTP server.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nlevitt/outbackcdx/cdx"
	"github.com/nlevitt/outbackcdx/cmn/jsp"
	"github.com/nlevitt/outbackcdx/metrics"
	"github.com/nlevitt/outbackcdx/server"
	"github.com/nlevitt/outbackcdx/store"
)

var (
	dataDir    = flag.String("data-dir", "./data", "directory holding the capture index")
	listen     = flag.String("listen", ":8080", "address to listen on")
	oracleURL  = flag.String("oracle-url", "", "optional access-oracle URL materializing the data-store-level filter")
	configPath = flag.String("config", "", "load effective settings from this checksummed JSON file, overriding the flags above")
	saveConfig = flag.String("save-config", "", "write the resolved settings to this path and exit")
)

func main() {
	os.Exit(run())
}

func resolveConfig() (config, error) {
	cfg := config{DataDir: *dataDir, Listen: *listen, OracleURL: *oracleURL}
	if *configPath != "" {
		if _, err := jsp.LoadMeta(*configPath, &cfg); err != nil {
			return config{}, err
		}
	}
	return cfg, nil
}

func run() int {
	flag.Parse()

	cfg, err := resolveConfig()
	if err != nil {
		glog.Errorf("outbackcdx: loading config from %s: %v", *configPath, err)
		return 1
	}
	if *saveConfig != "" {
		if err := jsp.SaveMeta(*saveConfig, &cfg); err != nil {
			glog.Errorf("outbackcdx: saving config to %s: %v", *saveConfig, err)
			return 1
		}
		return 0
	}

	var filter cdx.Filter
	if cfg.OracleURL != "" {
		filter = server.OracleFilter(cfg.OracleURL, nil)
	}

	st, err := store.Open(cfg.DataDir, filter)
	if err != nil {
		glog.Errorf("outbackcdx: opening store at %s: %v", cfg.DataDir, err)
		return 1
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", server.New(st, m).Handler())

	glog.Infof("outbackcdx: listening on %s, data dir %s", cfg.Listen, cfg.DataDir)
	if err := http.ListenAndServe(cfg.Listen, mux); err != nil {
		glog.Errorf("outbackcdx: %v", err)
		return 1
	}
	return 0
}
