package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhiquanyeo/ftl-robot-host/config"
	"github.com/zhiquanyeo/ftl-robot-host/robot"

	_ "github.com/zhiquanyeo/ftl-robot-host/drivers/romi"
	_ "github.com/zhiquanyeo/ftl-robot-host/transport"
)

func main() {
	configPath := flag.String("config", "robot.yml", "path to the wiring document")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
	}

	r, err := robot.New(cfg, robot.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("router construction failed")
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().Msg("robot host up")

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	level := false
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case <-tick.C:
			level = !level
			if err := r.WriteDigital(0, level); err != nil {
				log.Warn().Err(err).Msg("digital write failed")
			}
			mv, err := r.ReadBattMV()
			if err != nil {
				log.Warn().Err(err).Msg("battery read failed")
				continue
			}
			log.Info().Uint16("batt_mv", mv).Bool("d0", level).Msg("heartbeat")
		}
	}
}
