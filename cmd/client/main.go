package main

import (
	"context"
	goflag "flag"

	flag "github.com/spf13/pflag"

	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/mesh"
	"github.com/rockypaper/metachat/pkg/monitoring"
	"github.com/rockypaper/metachat/pkg/os"
	"github.com/rockypaper/metachat/pkg/service"
	"github.com/rockypaper/metachat/pkg/webrtc"
)

var Version = "?"

func main() {
	conf := config.NewClientConfig("")
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Metachat.Debug, "m", false)

	log.Info().Msgf("version %s", Version)
	if conf.Client.Room == "" {
		log.Fatal().Msg("no meeting token, use --room")
	}

	signaler, err := mesh.Connect(conf.Client, log)
	if err != nil {
		log.Fatal().Err(err).Msg("relay connection failed")
	}
	transport, err := webrtc.NewTransport(conf.Webrtc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("transport init failed")
	}

	var services service.Group
	services.AddIf(conf.Monitoring.IsEnabled(), monitoring.New(conf.Monitoring, "client", log))
	services.Start()
	defer func() {
		if err := services.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()

	capture := webrtc.NewSyntheticCapture(log)
	meeting := mesh.NewOrchestrator(conf.Client, signaler, transport, capture, nil, log)
	if err := meeting.Run(); err != nil {
		log.Fatal().Err(err).Msg("meeting join failed")
	}

	ended := make(chan error, 1)
	go func() { ended <- meeting.Wait() }()
	select {
	case err := <-ended:
		if err != nil {
			log.Error().Err(err).Msg("meeting ended")
		}
	case <-os.ExpectTermination():
		meeting.Leave()
	}
}
