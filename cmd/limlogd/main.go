// Command limlogd runs a single limlog topic and serves the read-only
// segment query API over HTTP.
package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/distlimit/limlog"
	"github.com/distlimit/limlog/httpapi"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dir := flag.String("dir", ".", "topic directory")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	topic, err := limlog.Open(
		limlog.WithDirectory(*dir),
		limlog.WithLogger(sugar),
		limlog.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		sugar.Fatalw("failed to open topic", "error", err)
	}
	defer topic.Close()

	router := httpapi.NewRouter(*dir)
	router.Handle("/metrics", promhttp.Handler())

	sugar.Infow("limlogd listening", "addr", *addr, "dir", *dir)
	if err := http.ListenAndServe(*addr, router); err != nil {
		sugar.Fatalw("server exited", "error", err)
	}
}
