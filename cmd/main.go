/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kdex-tech/kdex-pageview/internal/asset"
	"github.com/kdex-tech/kdex-pageview/internal/cache"
	"github.com/kdex-tech/kdex-pageview/internal/config"
	"github.com/kdex-tech/kdex-pageview/internal/metrics"
	"github.com/kdex-tech/kdex-pageview/internal/viewer"
	"github.com/kdex-tech/kdex-pageview/internal/web/server"
)

func main() {
	var cacheAddr string
	var configFile string
	var development bool
	var verbosity int
	var warmPages int
	var webserverAddr string

	flag.StringVar(&cacheAddr, "cache-address", "", "The valkey address used for the asset cache. Overrides cache.address "+
		"from the configuration file; leave both empty for an in-memory cache.")
	flag.StringVar(&configFile, "config-file", "/config.yaml", "The path to a configuration yaml file.")
	flag.BoolVar(&development, "zap-devel", true, "Use the development logger (console encoder, stack traces on warnings).")
	flag.IntVar(&verbosity, "v", 0, "Log verbosity; 1 traces page lifecycles and cache traffic.")
	flag.IntVar(&warmPages, "warm-pages", 0, "Number of leading pages whose assets are fetched into the cache at startup.")
	flag.StringVar(&webserverAddr, "webserver-bind-address", ":8090", "The address the webserver binds to.")
	flag.Parse()

	logger, err := newLogger(development, verbosity)
	if err != nil {
		panic(err)
	}
	setupLog := logger.WithName("setup")

	conf, err := config.Load(configFile)
	if err != nil {
		setupLog.Error(err, "unable to load configuration", "config-file", configFile)
		os.Exit(1)
	}
	if cacheAddr != "" {
		conf.Cache.Address = cacheAddr
	}

	mgr, err := openCache(conf, cache.NewCacheManager)
	if err != nil {
		setupLog.Error(err, "unable to open cache", "address", conf.Cache.Address, "revision", conf.Document.Revision)
		os.Exit(1)
	}
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := asset.NewFetcher(mgr.GetCache("assets", cache.CacheOptions{}), nil, logger.WithName("fetcher"))
	if warmPages > 0 {
		warm(ctx, fetcher, conf, warmPages, setupLog)
	}

	v := viewer.New(ctx, conf, fetcher, logger.WithName("viewer"))
	defer v.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sub := metrics.New(reg, conf.Document.ID).Observe(v.Bus())
	defer sub.Unsubscribe()

	srv := server.New(webserverAddr, v, reg, logger.WithName("web"))

	go func() {
		<-ctx.Done()
		setupLog.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			setupLog.Error(err, "problem shutting down web server")
		}
	}()

	setupLog.Info("starting web server", "address", webserverAddr, "document", conf.Document.ID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		setupLog.Error(err, "problem running web server")
		stop()
		return
	}
}

// openCache creates the cache manager and moves it to the document revision.
// The manager is closed again when it cannot be cycled.
func openCache(conf *config.Configuration, create func(addr, document string, ttl *time.Duration) (cache.CacheManager, error)) (cache.CacheManager, error) {
	ttl, err := conf.Cache.CacheTTL()
	if err != nil {
		return nil, err
	}

	mgr, err := create(conf.Cache.Address, conf.Document.ID, ttl)
	if err != nil {
		return nil, err
	}

	if err := mgr.Cycle(conf.Document.Revision, false); err != nil {
		mgr.Close()
		return nil, fmt.Errorf("cycling cache to revision %d: %w", conf.Document.Revision, err)
	}
	return mgr, nil
}

func newLogger(development bool, verbosity int) (logr.Logger, error) {
	zc := zap.NewProductionConfig()
	if development {
		zc = zap.NewDevelopmentConfig()
	}
	// zap levels are negative for increasing logr verbosity
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))

	zl, err := zc.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// warm pulls the first pages' assets into the shared cache so the first
// loads are served without touching the origin.
func warm(ctx context.Context, fetcher *asset.Fetcher, conf *config.Configuration, pages int, log logr.Logger) {
	pages = min(pages, conf.Document.Pages)
	if conf.Document.ConvertedUpTo > 0 {
		pages = min(pages, conf.Document.ConvertedUpTo)
	}
	for pageNum := 1; pageNum <= pages; pageNum++ {
		for _, name := range asset.Names(pageNum) {
			if err := fetcher.Warm(ctx, asset.Join(conf.Document.URL, name)); err != nil {
				log.V(1).Info("skipping warm", "page", pageNum, "asset", name, "error", err.Error())
			}
		}
	}
	log.Info("cache warmed", "pages", pages)
}
