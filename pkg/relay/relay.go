package relay

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/monitoring"
	"github.com/rockypaper/metachat/pkg/network/httpx"
	"github.com/rockypaper/metachat/pkg/os"
	"github.com/rockypaper/metachat/pkg/service"
)

// Relay is the whole rendezvous service: the websocket hub, the meet
// HTTP API, the web client pages, and the monitoring endpoint.
type Relay struct {
	conf     config.ServerConfig
	log      *logger.Logger
	hub      *Hub
	meets    *MeetRegistry
	services service.Group
}

func New(conf config.ServerConfig, log *logger.Logger) (*Relay, error) {
	meets, err := NewMeetRegistry(conf.Meet.Store, log)
	if err != nil {
		return nil, err
	}
	r := &Relay{
		conf:  conf,
		log:   log,
		hub:   NewHub(conf, log),
		meets: meets,
	}

	address := conf.Server.Address
	opts := []httpx.Option{httpx.WithLogger(log)}
	if conf.Server.Https {
		address = conf.Server.Tls.Address
		opts = append(opts, httpx.WithHttps(conf.Server.Tls.HttpsCert, conf.Server.Tls.HttpsKey, conf.Server.Tls.Domain))
	}
	srv, err := httpx.NewServer(address, func(*httpx.Server) http.Handler {
		h := httpx.NewServeMux("")
		h.HandleFunc("/ws", r.hub.handleConnection)
		h.HandleFunc("/api/meet/create", r.handleMeetCreate)
		h.HandleFunc("/api/meet/check/", r.handleMeetCheck)
		h.Handle("/static/", http.StripPrefix("/static/", httpx.FileServer(conf.Server.Web)))
		h.HandleFunc("/", r.pages)
		return h
	}, opts...)
	if err != nil {
		return nil, err
	}

	r.services.Add(srv)
	r.services.AddIf(conf.Monitoring.IsEnabled(), monitoring.New(conf.Monitoring, "relay", log))
	return r, nil
}

func (r *Relay) Run() {
	r.log.Info().Msgf("relay server is up (debug: %v)", r.conf.Metachat.Debug)
	r.services.Start()
}

func (r *Relay) Shutdown(ctx context.Context) error { return r.services.Shutdown(ctx) }

// pages serves the web client shell: the landing page on /newmeet and the
// meeting page on every /{meetId} path, exactly like the original app.
func (r *Relay) pages(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/":
		http.Redirect(w, req, "/newmeet", http.StatusFound)
	case "/newmeet":
		r.serveFile(w, req, "index.html")
	default:
		r.serveFile(w, req, "meet.html")
	}
}

func (r *Relay) serveFile(w http.ResponseWriter, req *http.Request, name string) {
	page := filepath.Join(r.conf.Server.Web, name)
	if !os.Exists(page) {
		http.NotFound(w, req)
		return
	}
	http.ServeFile(w, req, page)
}
