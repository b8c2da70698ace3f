// Package webrtc implements the pairwise media transport on top of pion.
package webrtc

import (
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v3"

	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
)

type ApiFactory struct {
	api  *pion.API
	conf pion.Configuration
}

type ModApiFun func(m *pion.MediaEngine, i *interceptor.Registry, s *pion.SettingEngine)

func NewApiFactory(conf config.Webrtc, log *logger.Logger, mod ModApiFun) (api *ApiFactory, err error) {
	m := &pion.MediaEngine{}
	if err = m.RegisterDefaultCodecs(); err != nil {
		return
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err = pion.RegisterDefaultInterceptors(m, i); err != nil {
			return
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := pion.SettingEngine{LoggerFactory: customLogger}
	if conf.IcePorts.Min > 0 && conf.IcePorts.Max > 0 {
		if err = s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return
		}
	}
	if mod != nil {
		mod(m, i, &s)
	}

	c := pion.Configuration{ICEServers: []pion.ICEServer{}}
	for _, server := range conf.IceServers {
		c.ICEServers = append(c.ICEServers, pion.ICEServer{
			URLs:       []string{server.Urls},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return &ApiFactory{
		api:  pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(i), pion.WithSettingEngine(s)),
		conf: c,
	}, err
}

func (a *ApiFactory) NewPeer() (*pion.PeerConnection, error) {
	return a.api.NewPeerConnection(a.conf)
}
