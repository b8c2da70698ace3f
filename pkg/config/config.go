package config

import "time"

type (
	// ServerConfig is the relay server configuration.
	ServerConfig struct {
		Metachat   Shared
		Server     Server
		Meet       Meet
		Monitoring Monitoring
	}
	// ClientConfig is the headless participant configuration.
	ClientConfig struct {
		Metachat   Shared
		Client     Client
		Webrtc     Webrtc
		Monitoring Monitoring
	}

	Shared struct {
		Debug bool
	}

	Server struct {
		Address string `fig:"address" default:":3001"`
		Origin  string `fig:"origin" default:"*"`
		Web     string `fig:"web" default:"./web"`
		Https   bool
		Tls     Tls
	}
	Tls struct {
		Address   string `fig:"address" default:":443"`
		HttpsCert string
		HttpsKey  string
		Domain    string
	}

	Meet struct {
		// Store is the path of the meeting token records file.
		Store string `fig:"store" default:"meetings.json"`
	}

	Client struct {
		RelayAddress string `fig:"relay_address" default:"localhost:3001"`
		Endpoint     string `fig:"endpoint" default:"/ws"`
		Secure       bool
		UserName     string `fig:"user_name" default:"Metabro"`
		Room         string
		// SettleDelayMs is the wait before re-initiating sessions after a
		// media change teardown. Best effort: it should exceed the one-way
		// signaling trip, nothing breaks when it doesn't.
		SettleDelayMs int  `fig:"settle_delay_ms" default:"120"`
		Mic           bool `fig:"mic" default:"true"`
		Camera        bool
	}

	Webrtc struct {
		IceServers                 []IceServer
		IcePorts                   struct{ Min, Max uint16 }
		LogLevel                   int `fig:"log_level" default:"3"`
		DisableDefaultInterceptors bool
	}
	IceServer struct {
		Urls       string `fig:"urls" default:"stun:stun.l.google.com:19302"`
		Username   string
		Credential string
	}

	Monitoring struct {
		Port             int    `fig:"port" default:"6601"`
		URLPrefix        string `fig:"url_prefix"`
		MetricEnabled    bool
		ProfilingEnabled bool
	}
)

func (m Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

func (c Client) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}
