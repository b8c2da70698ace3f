package main

import (
	"context"
	goflag "flag"

	flag "github.com/spf13/pflag"

	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/os"
	"github.com/rockypaper/metachat/pkg/relay"
)

var Version = "?"

func main() {
	conf := config.NewServerConfig("")
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Metachat.Debug, "r", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	r, err := relay.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("relay init failed")
	}
	r.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := r.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	<-os.ExpectTermination()
	cancel()
}
