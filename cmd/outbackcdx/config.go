package main

import "github.com/nlevitt/outbackcdx/cmn/jsp"

// config is the persisted shape of this daemon's effective settings,
// written with -save-config so an operator can inspect or reuse the
// resolved flags without re-typing them.
type config struct {
	DataDir   string `json:"dataDir"`
	Listen    string `json:"listen"`
	OracleURL string `json:"oracleUrl,omitempty"`
}

func (c *config) JspOpts() jsp.Options { return jsp.Plain() }
