package relay

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/os"
)

// MeetRegistry is the token → lastAccess record store behind the meet API.
// Records are mirrored into a JSON file guarded by an inter-process file
// lock, so several server instances sharing the same disk won't clobber
// each other. There is no eviction: the store only grows.
type MeetRegistry struct {
	mu    sync.Mutex
	path  string
	flock *os.Flock
	meets map[string]meetRecord
	log   *logger.Logger
}

type meetRecord struct {
	LastAccess time.Time `json:"last_access"`
}

func NewMeetRegistry(path string, log *logger.Logger) (*MeetRegistry, error) {
	lock, err := os.NewFileLock(path + ".lock")
	if err != nil {
		return nil, err
	}
	r := &MeetRegistry{
		path:  path,
		flock: lock,
		meets: make(map[string]meetRecord),
		log:   log.Extend(log.With().Str("m", "meet")),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Create makes a new unguessable meeting token (128 random bits, hex).
func (r *MeetRegistry) Create() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := hex.EncodeToString(b)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.meets[id] = meetRecord{LastAccess: time.Now().UTC()}
	if err := r.persist(); err != nil {
		delete(r.meets, id)
		return "", err
	}
	metrics.meets.Inc()
	return id, nil
}

// Check reports whether the token is known and refreshes its last access.
func (r *MeetRegistry) Check(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meets[id]; !ok {
		return false
	}
	r.meets[id] = meetRecord{LastAccess: time.Now().UTC()}
	if err := r.persist(); err != nil {
		r.log.Error().Err(err).Msg("couldn't persist the meet store")
	}
	return true
}

func (r *MeetRegistry) load() error {
	if !os.Exists(r.path) {
		return nil
	}
	if err := r.flock.Lock(); err != nil {
		return err
	}
	defer func() { _ = r.flock.Unlock() }()
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &r.meets)
}

// persist is called under r.mu.
func (r *MeetRegistry) persist() error {
	data, err := json.MarshalIndent(r.meets, "", "  ")
	if err != nil {
		return err
	}
	if err := r.flock.Lock(); err != nil {
		return err
	}
	defer func() { _ = r.flock.Unlock() }()
	return os.WriteFile(r.path, data, 0644)
}

// handleMeetCreate implements POST /api/meet/create.
func (h *Relay) handleMeetCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := h.meets.Create()
	if err != nil {
		h.log.Error().Err(err).Msg("meet creation fail")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create meeting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"meetId": id})
}

// handleMeetCheck implements GET /api/meet/check/{meetId}.
func (h *Relay) handleMeetCheck(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/meet/check/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !h.meets.Check(id) {
		writeJSON(w, http.StatusNotFound, map[string]bool{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
