package config

import (
	"os"

	"github.com/kkyr/fig"
	flag "github.com/spf13/pflag"
)

const EnvPrefix = "METACHAT"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom directory of the configuration file.
// Reads and puts environment variables with the prefix METACHAT_.
// Params from the config should be in uppercase separated with _.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.metachat")
		}
	}
	return fig.Load(config, fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
}

// NewServerConfig loads the relay server config or panics.
func NewServerConfig(path string) (conf ServerConfig) {
	if err := LoadConfig(&conf, path); err != nil {
		panic(err)
	}
	return
}

// NewClientConfig loads the headless client config or panics.
func NewClientConfig(path string) (conf ClientConfig) {
	if err := LoadConfig(&conf, path); err != nil {
		panic(err)
	}
	return
}

func (c *ServerConfig) ParseFlags() {
	flag.BoolVarP(&c.Metachat.Debug, "debug", "v", c.Metachat.Debug, "verbose logging")
	flag.StringVar(&c.Server.Address, "address", c.Server.Address, "HTTP server address")
	flag.StringVar(&c.Meet.Store, "store", c.Meet.Store, "meeting records file")
	flag.Parse()
}

func (c *ClientConfig) ParseFlags() {
	flag.BoolVarP(&c.Metachat.Debug, "debug", "v", c.Metachat.Debug, "verbose logging")
	flag.StringVar(&c.Client.RelayAddress, "relay", c.Client.RelayAddress, "relay server address")
	flag.StringVar(&c.Client.Room, "room", c.Client.Room, "meeting token to join")
	flag.StringVar(&c.Client.UserName, "name", c.Client.UserName, "display name")
	flag.Parse()
}
