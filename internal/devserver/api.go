package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bulletmania/internal/auth"
	"github.com/jason-s-yu/bulletmania/internal/middleware"
	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/jason-s-yu/bulletmania/internal/orchestrator"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// APIOptions configures the fake orchestration service.
type APIOptions struct {
	AppID string
	// GameHost and GamePort are advertised as the exposed port of every
	// non-local room.
	GameHost string
	GamePort int
	// ProvisionDelay is how long after creation a non-local room starts
	// reporting its exposed port.
	ProvisionDelay time.Duration
}

// API serves the lobby, room and auth endpoints the client consumes.
type API struct {
	opts   APIOptions
	dir    Directory
	signer *auth.Signer
	logger *logrus.Logger
	now    func() time.Time
}

func NewAPI(opts APIOptions, dir Directory, signer *auth.Signer, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &API{opts: opts, dir: dir, signer: signer, logger: logger, now: time.Now}
}

// Router mounts the API's routes.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.LogMiddleware(a.logger))

	r.Route("/auth/v1/{appId}", func(r chi.Router) {
		r.Use(a.requireApp)
		r.Post("/login/anonymous", a.loginAnonymous)
		r.Post("/login/google", a.loginGoogle)
	})
	r.Route("/lobby/v3/{appId}", func(r chi.Router) {
		r.Use(a.requireApp)
		r.Post("/create", a.createLobby)
		r.Get("/info/roomid/{roomId}", a.lobbyInfo)
		r.Get("/list/public", a.listPublic)
	})
	r.Route("/rooms/v2/{appId}", func(r chi.Router) {
		r.Use(a.requireApp)
		r.Get("/connectioninfo/{roomId}", a.connectionInfo)
	})
	return r
}

func (a *API) requireApp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "appId") != a.opts.AppID {
			http.Error(w, "unknown app id", http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) loginAnonymous(w http.ResponseWriter, r *http.Request) {
	a.issueToken(w, uuid.NewString(), auth.KindAnonymous)
}

func (a *API) loginGoogle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDToken string `json:"idToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IDToken == "" {
		http.Error(w, "missing idToken", http.StatusBadRequest)
		return
	}
	// Dev only: the id token is not verified against Google, it just keys
	// a stable player id.
	playerID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("google:"+body.IDToken)).String()
	a.issueToken(w, playerID, auth.KindGoogle)
}

func (a *API) issueToken(w http.ResponseWriter, playerID string, kind auth.Kind) {
	token, err := a.signer.Issue(playerID, kind)
	if err != nil {
		a.logger.Errorf("issue token: %v", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"token": token})
}

func (a *API) createLobby(w http.ResponseWriter, r *http.Request) {
	claims, err := a.signer.Verify(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	var req orchestrator.CreateLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad lobby request payload", http.StatusBadRequest)
		return
	}
	if !req.Visibility.Valid() {
		http.Error(w, "invalid visibility", http.StatusBadRequest)
		return
	}
	if !req.Region.Valid() {
		http.Error(w, "invalid region", http.StatusBadRequest)
		return
	}
	var cfg models.RoomConfig
	if err := json.Unmarshal([]byte(req.RoomConfig), &cfg); err != nil {
		http.Error(w, "invalid roomConfig", http.StatusBadRequest)
		return
	}
	if cfg.Capacity < 1 {
		http.Error(w, "capacity must be positive", http.StatusBadRequest)
		return
	}
	if cfg.PlayerNicknameMap == nil {
		cfg.PlayerNicknameMap = map[string]string{}
	}

	info := &models.LobbyInfo{
		RoomID:        strings.ToLower(ulid.Make().String()),
		AppID:         a.opts.AppID,
		Region:        req.Region,
		Visibility:    req.Visibility,
		CreatedBy:     claims.PlayerID,
		CreatedAt:     a.now().UTC(),
		InitialConfig: models.InitialConfig{Capacity: cfg.Capacity, WinningScore: cfg.WinningScore},
		State: &models.LobbyState{
			IsGameEnd:         cfg.IsGameEnd,
			PlayerNicknameMap: cfg.PlayerNicknameMap,
		},
	}
	if err := a.dir.Create(r.Context(), info); err != nil {
		a.logger.Errorf("create lobby: %v", err)
		http.Error(w, "failed to create lobby", http.StatusInternalServerError)
		return
	}
	a.logger.WithFields(logrus.Fields{
		"room":       info.RoomID,
		"visibility": info.Visibility,
		"region":     info.Region,
		"creator":    info.CreatedBy,
	}).Info("lobby created")
	writeJSON(w, info)
}

func (a *API) lobbyInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := a.getLobby(w, r)
	if !ok {
		return
	}
	writeJSON(w, info)
}

func (a *API) listPublic(w http.ResponseWriter, r *http.Request) {
	region := models.Region(r.URL.Query().Get("region"))
	if region != "" && !region.Valid() {
		http.Error(w, "invalid region", http.StatusBadRequest)
		return
	}
	lobbies, err := a.dir.ListPublic(r.Context(), region)
	if err != nil {
		a.logger.Errorf("list lobbies: %v", err)
		http.Error(w, "failed to list lobbies", http.StatusInternalServerError)
		return
	}
	writeJSON(w, lobbies)
}

func (a *API) connectionInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := a.getLobby(w, r)
	if !ok {
		return
	}
	resp := models.ConnectionInfo{RoomID: info.RoomID, Status: "starting"}
	if !a.now().Before(info.CreatedAt.Add(a.opts.ProvisionDelay)) {
		resp.Status = "active"
		resp.ExposedPort = &models.ExposedPort{
			Name:          "default",
			Host:          a.opts.GameHost,
			Port:          a.opts.GamePort,
			TransportType: string(models.TransportTCP),
		}
	}
	writeJSON(w, resp)
}

func (a *API) getLobby(w http.ResponseWriter, r *http.Request) (*models.LobbyInfo, bool) {
	roomID := chi.URLParam(r, "roomId")
	info, err := a.dir.Get(r.Context(), roomID)
	if errors.Is(err, ErrLobbyNotFound) {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		a.logger.Errorf("get lobby %s: %v", roomID, err)
		http.Error(w, "failed to read lobby", http.StatusInternalServerError)
		return nil, false
	}
	return info, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
