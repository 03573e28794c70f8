package server

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/nlevitt/outbackcdx/cdx"
)

// oracleAllow is the resolver's body content meaning "visible at this
// access point." Anything else - a different body, a non-200 status,
// or a request failure - rejects the capture.
const oracleAllow = "allow"

// OracleFilter materializes the data-store-level capture filter from an
// external access-oracle HTTP resolver: its response body decides
// whether a capture is visible at all, ahead of the per-request
// access.Store filter applied later in the chain.
//
// A failed or unreachable resolver call rejects the capture; it is
// never silently allowed through.
func OracleFilter(oracleURL string, client *http.Client) cdx.Filter {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(c cdx.Capture) bool {
		q := url.Values{}
		q.Set("url", c.Original)
		q.Set("urlkey", c.Urlkey)
		q.Set("timestamp", fmt.Sprintf("%d", c.Timestamp))

		resp, err := client.Get(oracleURL + "?" + q.Encode())
		if err != nil {
			glog.Errorf("server: access oracle unavailable: %v", err)
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			glog.Errorf("server: reading access oracle response: %v", err)
			return false
		}
		return strings.TrimSpace(string(body)) == oracleAllow
	}
}
