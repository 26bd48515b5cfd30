// Command bot is a demo agent: it joins over HTTP, wanders between locations and greets
// agents it meets.
package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shelltown.ai/internal/logging"
	"shelltown.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "http://localhost:8080", "server base url")
		name  = flag.String("name", "bot", "agent name")
		emoji = flag.String("emoji", "🤖", "agent emoji")
		every = flag.Duration("every", 500*time.Millisecond, "delay between actions")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	)
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: "info"})
	if err != nil {
		os.Exit(2)
	}
	logger = logger.Named("bot")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := newClient(*url)
	j, err := c.Join(ctx, protocol.JoinRequest{Name: *name, Emoji: *emoji, Description: "A wandering demo bot"})
	if err != nil {
		logger.Fatal("join", zap.Error(err))
	}
	logger.Info("joined", zap.String("agent_id", j.AgentID), zap.Int("x", j.Agent.X), zap.Int("y", j.Agent.Y))
	defer func() {
		lctx, lcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer lcancel()
		if err := c.Leave(lctx); err != nil {
			logger.Warn("leave", zap.Error(err))
		}
	}()

	w := newWanderer(c, rand.New(rand.NewSource(*seed)), logger)
	if err := w.run(ctx, *every); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stopped", zap.Error(err))
	}
}
