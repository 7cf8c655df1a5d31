package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/GriffinCanCode/docloader/internal/document"
	"github.com/GriffinCanCode/docloader/internal/infrastructure/config"
	"github.com/GriffinCanCode/docloader/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docloader/internal/loader"
	"github.com/GriffinCanCode/docloader/internal/logging"
	"github.com/GriffinCanCode/docloader/internal/transport"
	"github.com/antchfx/htmlquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// headerFlags collects repeated -H values in order.
type headerFlags []loader.Header

func (h *headerFlags) String() string {
	parts := make([]string, 0, len(*h))
	for _, hdr := range *h {
		parts = append(parts, hdr.Name+": "+hdr.Value)
	}
	return strings.Join(parts, ", ")
}

func (h *headerFlags) Set(value string) error {
	name, val, ok := strings.Cut(value, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("header %q is not in 'Name: value' form", value)
	}
	*h = append(*h, loader.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(val)})
	return nil
}

func main() {
	cfg := config.LoadOrDefault()

	// Parse flags
	var headers headerFlags
	method := flag.String("X", http.MethodGet, "HTTP method")
	body := flag.String("d", "", "Request body")
	flag.Var(&headers, "H", "Request header 'Name: value' (repeatable, later wins)")
	follow := flag.Bool("follow-refresh", cfg.Loader.FollowMetaRefresh, "Follow meta refresh directives")
	maxRefreshes := flag.Int("max-refreshes", cfg.Loader.MaxRefreshes, "Refresh cap, 0 for none")
	xpath := flag.String("xpath", "", "Print nodes matching this XPath instead of a summary")
	metricsAddr := flag.String("metrics-addr", cfg.Metrics.Addr, "Serve Prometheus metrics on this address")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: navigate [flags] URL\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	target, err := url.Parse(flag.Arg(0))
	if err != nil {
		log.Fatalf("Invalid URL: %v", err)
	}

	cfg.Loader.FollowMetaRefresh = *follow
	cfg.Loader.MaxRefreshes = *maxRefreshes
	cfg.Metrics.Addr = *metricsAddr
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var metrics *monitoring.Metrics
	if cfg.Metrics.Addr != "" {
		metrics = monitoring.NewMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(cfg.Metrics.Addr, logger.Logger)
	}

	client := transport.NewClient(transport.Options{
		Timeout:      cfg.HTTP.Timeout,
		Retries:      cfg.HTTP.Retries,
		UserAgent:    cfg.HTTP.UserAgent,
		RateLimitRPS: cfg.HTTP.RateLimitRPS,
		Logger:       logger.Logger,
		Metrics:      metrics,
	})
	builder := document.NewBuilder(client,
		document.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		document.WithBuilderLogger(logger.Logger),
	)

	opts := append(loader.FromConfig(cfg.Loader), loader.WithLogger(logger), loader.WithMetrics(metrics))
	l := loader.New(loader.NewFetch(client), opts...)

	// Cancel the navigation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := &loader.NavigationRequest{
		Target:  target,
		Method:  strings.ToUpper(*method),
		Headers: headers,
	}
	if *body != "" {
		req.Body = []byte(*body)
	}

	doc, err := l.Open(ctx, builder, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Fatalf("Navigation cancelled")
		}
		log.Fatalf("Navigation failed: %v", err)
	}
	defer doc.Close()

	if err := render(os.Stdout, doc, *xpath); err != nil {
		log.Fatalf("Failed to render document: %v", err)
	}
}

func render(w io.Writer, doc *document.Document, xpath string) error {
	if xpath == "" {
		fmt.Fprintf(w, "URL:    %s\n", doc.Address())
		fmt.Fprintf(w, "Status: %d\n", doc.Status)
		fmt.Fprintf(w, "Type:   %s\n", doc.ContentType)
		fmt.Fprintf(w, "Title:  %s\n", doc.Title())
		return nil
	}

	nodes, err := doc.XPath(xpath)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		fmt.Fprintln(w, strings.TrimSpace(htmlquery.InnerText(n)))
	}
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}
