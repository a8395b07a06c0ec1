// Command sse_load opens many concurrent connections to a skinwatch SSE stream
// and reports connection and event counts.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type stats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
	pings       atomic.Int64

	mu     sync.Mutex
	byName map[string]int64
}

func newStats() *stats {
	return &stats{byName: map[string]int64{}}
}

func (s *stats) event(name string) {
	s.events.Add(1)
	s.mu.Lock()
	s.byName[name]++
	s.mu.Unlock()
}

func (s *stats) fields() []zap.Field {
	s.mu.Lock()
	byName := make(map[string]int64, len(s.byName))
	for k, v := range s.byName {
		byName[k] = v
	}
	s.mu.Unlock()
	return []zap.Field{
		zap.Int64("connected", s.connected.Load()),
		zap.Int64("connect_errs", s.connectErrs.Load()),
		zap.Int64("stream_errs", s.streamErrs.Load()),
		zap.Int64("events", s.events.Load()),
		zap.Int64("pings", s.pings.Load()),
		zap.Any("by_event", byName),
	}
}

// consume reads one SSE stream until it ends. Comment lines count as pings;
// an event is counted when its blank terminator line arrives.
func consume(r io.Reader, s *stats) error {
	reader := bufio.NewReader(r)
	name := ""
	pending := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if pending {
				if name == "" {
					name = "message"
				}
				s.event(name)
			}
			name, pending = "", false
		case strings.HasPrefix(line, ":"):
			s.pings.Add(1)
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			pending = true
		}
	}
}

func stream(ctx context.Context, client *http.Client, url string, s *stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		s.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.connectErrs.Add(1)
		return
	}

	s.connected.Add(1)
	if err := consume(resp.Body, s); err != nil && ctx.Err() == nil {
		s.streamErrs.Add(1)
	}
}

func main() {
	var (
		targetURL    string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
	)
	flag.StringVar(&targetURL, "url", "http://localhost:8080/notifications/stream", "SSE endpoint URL")
	flag.IntVar(&connections, "conns", 1000, "number of concurrent connections to open")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread connection starts across this window")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}
	if rampUp == 0 && connections > 100 {
		// 1 second per 500 connections
		rampUp = max(time.Duration(connections/500)*time.Second, time.Second)
	}

	logger.Info("starting SSE load",
		zap.String("url", targetURL), zap.Int("conns", connections),
		zap.Duration("duration", testDuration), zap.Duration("ramp", rampUp))

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConns:        connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
	}

	s := newStats()
	start := time.Now()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("status", append(s.fields(), zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))...)
			}
		}
	}()

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	var wg sync.WaitGroup
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream(ctx, client, targetURL, s)
		}()
	}
	wg.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	logger.Info("done", append(s.fields(),
		zap.Duration("elapsed", elapsed.Truncate(time.Millisecond)),
		zap.Float64("events_per_sec", float64(s.events.Load())/elapsed.Seconds()))...)
}
