package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/gaspardpetit/qscore/internal/analysis"
	"github.com/gaspardpetit/qscore/internal/config"
	"github.com/gaspardpetit/qscore/internal/dispatch"
	"github.com/gaspardpetit/qscore/internal/gate"
	"github.com/gaspardpetit/qscore/internal/handler"
	_ "github.com/gaspardpetit/qscore/internal/handler/builtin"
	"github.com/gaspardpetit/qscore/internal/httpapi"
	"github.com/gaspardpetit/qscore/internal/logx"
	"github.com/gaspardpetit/qscore/internal/metrics"
	"github.com/gaspardpetit/qscore/internal/server"
	"github.com/gaspardpetit/qscore/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	showHandlers := flag.Bool("help-handlers", false, "print available scoring handlers and exit")
	var cfg config.ServerConfig
	// defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(flag.CommandLine)
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "qscore version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("qscore version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if *showHandlers {
		printHandlers()
		return
	}

	logx.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	preg := prometheus.NewRegistry()
	preg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(preg)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(cfg.RedisAddr, serverstate.DefaultRedisKey)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		defer rs.Close()
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}
	serverstate.SetStatus(serverstate.StatusNotReady)

	binding, err := handler.New(cfg.Handler, cfg.HandlerOpts)
	if err != nil {
		logx.Log.Fatal().Err(err).Str("handler", cfg.Handler).Msg("load handler")
	}
	an, ok := analysis.ByName(cfg.Analyzer)
	if !ok {
		logx.Log.Fatal().Str("analyzer", cfg.Analyzer).Msg("unknown analyzer")
	}
	exclusive := cfg.Exclusive || binding.Exclusive
	if d, ok := handler.DescriptorFor(cfg.Handler); ok && !d.ConcurrencySafe && !exclusive {
		logx.Log.Warn().Str("handler", cfg.Handler).Msg("handler is not concurrency-safe; forcing exclusive execution")
		exclusive = true
	}
	disp := dispatch.New(binding, gate.New(exclusive), an)

	threading := "single"
	if cfg.MultiThreaded {
		threading = "multi"
	}
	serverstate.SetHandler(binding.Name, binding.Mode.String(), exclusive, threading)
	metrics.SetHandlerInfo(binding.Name, binding.Mode.String(), exclusive)

	tcp := server.New(server.Config{
		Addr:           cfg.Addr(),
		MultiThreaded:  cfg.MultiThreaded,
		MaxConnections: cfg.MaxConnections,
		KeepAlive:      cfg.KeepAlive,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		ReadTimeout:    cfg.ReadTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}, disp)
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logx.Log.Fatal().Err(err).Str("addr", cfg.Addr()).Msg("listen")
	}

	var (
		api     *httpapi.API
		httpSrv *http.Server
	)
	if cfg.HTTPAddr != "" {
		api = httpapi.New(disp, httpapi.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			MaxBodyBytes:   cfg.MaxFrameBytes,
			Gatherer:       preg,
			Conns:          tcp,
			Version:        version,
		})
		httpSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: api.Handler(), ReadHeaderTimeout: 10 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				_ = tcp.Close()
				if httpSrv != nil {
					_ = httpSrv.Close()
				}
				cancel()
				return
			}
			serverstate.StartDrain()
			logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Int64("connections", tcp.ActiveConnections()).Msg("draining; send SIGTERM again to terminate immediately")
			go func() {
				if err := drain(tcp, httpSrv, api, cfg.DrainTimeout); err != nil {
					logx.Log.Warn().Err(err).Msg("drain timeout exceeded; terminating")
				} else {
					logx.Log.Info().Msg("drain complete; terminating")
				}
				cancel()
			}()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := tcp.Serve(ln); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return fmt.Errorf("tcp server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = tcp.Close()
		if httpSrv != nil {
			_ = httpSrv.Close()
		}
		return nil
	})
	if httpSrv != nil {
		g.Go(func() error {
			logx.Log.Info().Str("addr", cfg.HTTPAddr).Msg("http server starting")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	serverstate.SetStatus(serverstate.StatusReady)
	logx.Log.Info().Str("addr", ln.Addr().String()).Str("handler", binding.Name).Str("mode", binding.Mode.String()).
		Bool("exclusive", exclusive).Str("threading", threading).Msg("server starting")

	if err := g.Wait(); err != nil {
		serverstate.SetStatus(serverstate.StatusStopped)
		logx.Log.Fatal().Err(err).Msg("server error")
	}
	serverstate.SetStatus(serverstate.StatusStopped)
	logx.Log.Info().Msg("server stopped")
}

// drain stops accepting work and waits for in-flight requests on every
// transport, up to timeout.
func drain(tcp *server.Server, httpSrv *http.Server, api *httpapi.API, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error { return tcp.Shutdown(ctx) })
	if httpSrv != nil {
		g.Go(func() error {
			if err := httpSrv.Shutdown(ctx); err != nil {
				_ = httpSrv.Close()
				return err
			}
			return nil
		})
		g.Go(func() error { return api.Shutdown(ctx) })
	}
	return g.Wait()
}

func printHandlers() {
	fmt.Println("Handlers:")
	for _, name := range handler.Names() {
		d, _ := handler.DescriptorFor(name)
		fmt.Printf("  - %s (%s)\n", d.Name, d.Mode)
		if d.Summary != "" {
			fmt.Printf("    %s\n", d.Summary)
		}
		if !d.ConcurrencySafe {
			fmt.Println("    not concurrency-safe; always runs exclusively")
		}
		keys := make([]string, 0, len(d.Options))
		for k := range d.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    * %s: %s\n", k, d.Options[k])
		}
	}
}
