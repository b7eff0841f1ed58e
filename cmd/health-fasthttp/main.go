// Command health-fasthttp is a tiny health-probe sidecar. It polls
// the main server's /readyz and serves the cached verdict over
// fasthttp, so load balancers can probe at high frequency without
// touching the API process.
package main

import (
	"flag"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"courierdb/pkg/logger"
)

func main() {
	listen := flag.String("listen", ":8081", "listen address")
	target := flag.String("target", "http://127.0.0.1:8080/readyz", "readiness URL to poll")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	logger.Init()

	var ready atomic.Bool
	go func() {
		client := &http.Client{Timeout: 2 * time.Second}
		for {
			resp, err := client.Get(*target)
			ok := err == nil && resp.StatusCode == http.StatusOK
			if resp != nil {
				_ = resp.Body.Close()
			}
			if ok != ready.Load() {
				logger.Info("upstream_readiness_changed", "ready", ok)
			}
			ready.Store(ok)
			time.Sleep(*interval)
		}
	}()

	handler := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/healthz":
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"status":"ok"}`)
		case "/readyz":
			ctx.SetContentType("application/json")
			if ready.Load() {
				ctx.SetBodyString(`{"status":"ok"}`)
			} else {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				ctx.SetBodyString(`{"status":"not ready"}`)
			}
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	logger.Info("health_sidecar_listening", "addr", *listen, "target", *target)
	if err := fasthttp.ListenAndServe(*listen, handler); err != nil {
		logger.Error("health_sidecar_failed", "error", err)
	}
}
