package controllers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/voicespawn/backend/internal/cctx"
	"github.com/voicespawn/backend/internal/database/models"
	"github.com/voicespawn/backend/internal/platform"
	"github.com/voicespawn/backend/internal/registry"
	"github.com/voicespawn/backend/internal/router"
)

var _ router.Controller = (*AdminController)(nil)

const permissionRemediation = "the bot is missing room-management rights; " +
	"make sure its role has the manage-rooms permission and access to the target group"

type AdminController struct {
	Registry       *registry.Registry
	Provisioner    *registry.Provisioner
	AdminPublicKey string

	publicKey   paseto.V4AsymmetricPublicKey
	tokenParser paseto.Parser
}

type ensureCreationChannelRequest struct {
	Name           string  `json:"name"`
	RequiredRoleID *string `json:"requiredRoleId,omitempty"`
	JoinRoleID     *string `json:"joinRoleId,omitempty"`
	UserLimit      *int    `json:"userLimit,omitempty"`
}

type creationChannelResponse struct {
	RoomID         string    `json:"roomId"`
	GuildID        string    `json:"guildId"`
	Name           string    `json:"name"`
	RequiredRoleID *string   `json:"requiredRoleId,omitempty"`
	JoinRoleID     *string   `json:"joinRoleId,omitempty"`
	UserLimit      *int      `json:"userLimit,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func creationChannelFromModel(def *models.CreationChannel) creationChannelResponse {
	return creationChannelResponse{
		RoomID:         def.ID,
		GuildID:        def.GuildID,
		Name:           def.Name,
		RequiredRoleID: def.RequiredRoleID,
		JoinRoleID:     def.JoinRoleID,
		UserLimit:      def.UserLimit,
		UpdatedAt:      def.UpdatedAt,
	}
}

func (c *AdminController) Register(r *mux.Router) {
	var err error
	if c.publicKey, err = loadPasetoPublicKey(c.AdminPublicKey); err != nil {
		zap.L().Error("failed to decode admin public key, admin API disabled", zap.Error(err))
		return
	}

	c.tokenParser = paseto.MakeParser([]paseto.Rule{
		paseto.IssuedBy("voicespawn"),
		paseto.NotExpired(),
	})

	r.HandleFunc("/admin/guilds/{guildID}/creation-channels", c.withAdmin(c.handleEnsure)).
		Methods(http.MethodPost)
	r.HandleFunc("/admin/guilds/{guildID}/creation-channels", c.withAdmin(c.handleList)).
		Methods(http.MethodGet)
}

func (c *AdminController) handleEnsure(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guildID"]

	var req ensureCreationChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	if req.UserLimit != nil && (*req.UserLimit < 1 || *req.UserLimit > 99) {
		writeError(w, http.StatusUnprocessableEntity, "userLimit must be between 1 and 99")
		return
	}

	admin, _ := r.Context().Value(cctx.AdminSubject).(string)

	def, wasCreated, err := c.Provisioner.EnsureCreationChannel(r.Context(), registry.EnsureParams{
		GuildID:        guildID,
		Name:           req.Name,
		RequiredRoleID: req.RequiredRoleID,
		JoinRoleID:     req.JoinRoleID,
		UserLimit:      req.UserLimit,
	})
	if errors.Is(err, platform.ErrPermissionDenied) {
		writeError(w, http.StatusForbidden, permissionRemediation)
		return
	} else if err != nil {
		zap.L().Error("creation channel upsert failed",
			zap.String("guild_id", guildID),
			zap.String("admin", admin),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upsert failed")
		return
	}

	zap.L().Info("creation channel ensured",
		zap.String("guild_id", guildID),
		zap.String("room_id", def.ID),
		zap.String("admin", admin),
		zap.Bool("was_created", wasCreated))

	status := http.StatusOK
	if wasCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, creationChannelFromModel(def))
}

func (c *AdminController) handleList(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guildID"]

	defs, err := c.Registry.DefinitionsForGuild(r.Context(), guildID)
	if err != nil {
		zap.L().Error("creation channel listing failed", zap.String("guild_id", guildID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}

	out := make([]creationChannelResponse, 0, len(defs))
	for i := range defs {
		out = append(out, creationChannelFromModel(&defs[i]))
	}

	writeJSON(w, http.StatusOK, out)
}

// withAdmin rejects requests without a valid admin bearer token and
// records the verified subject on the request context.
func (c *AdminController) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token, err := c.tokenParser.ParseV4Public(c.publicKey, raw, nil)
		if err != nil {
			zap.L().Debug("invalid admin token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		subject, err := token.GetSubject()
		if err != nil || subject == "" {
			writeError(w, http.StatusUnauthorized, "token has no subject")
			return
		}

		next(w, r.WithContext(cctx.WithValues(r.Context(), cctx.AdminSubject, subject)))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func loadPasetoPublicKey(encoded string) (key paseto.V4AsymmetricPublicKey, err error) {
	var decoded []byte
	if decoded, err = base64.StdEncoding.DecodeString(encoded); err != nil {
		return
	}

	return paseto.NewV4AsymmetricPublicKeyFromBytes(decoded)
}
