package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minefleet/minefleet/internal/bots"
	"github.com/minefleet/minefleet/internal/config"
	"github.com/minefleet/minefleet/internal/storage/sqlite"
	"github.com/minefleet/minefleet/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	manager        *bots.Manager
	profileStorage *sqlite.ProfileStorage
	chatLogStorage *sqlite.ChatLogStorage
	config         *config.Config
	logger         *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(manager *bots.Manager, profileStorage *sqlite.ProfileStorage, chatLogStorage *sqlite.ChatLogStorage, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		manager:        manager,
		profileStorage: profileStorage,
		chatLogStorage: chatLogStorage,
		config:         cfg,
		logger:         log.Named("api-handler"),
	}
}

// GetProfiles returns all saved bot profiles
func (h *Handler) GetProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profileStorage.GetAll()
	if err != nil {
		h.logger.Error("Failed to fetch profiles", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if profiles == nil {
		profiles = []*sqlite.BotProfile{}
	}
	WriteJSON(w, http.StatusOK, profiles)
}

// CreateProfile saves a new bot profile
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req sqlite.BotProfile
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.ServerIP == "" || req.Nickname == "" {
		WriteError(w, http.StatusBadRequest, "username, serverIp and nickname are required")
		return
	}
	if req.Port == 0 {
		req.Port = h.config.Minecraft.DefaultPort
	}

	profile, err := h.profileStorage.Create(&req)
	if err != nil {
		h.logger.Error("Failed to create profile", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

// DeleteProfile removes a saved bot profile
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.profileStorage.Delete(id); err != nil {
		h.logger.Error("Failed to delete profile", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// connectRequest is the body of POST /api/bots/connect
type connectRequest struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Password      string `json:"password"`
	Nickname      string `json:"nickname"`
	AutoReconnect *bool  `json:"autoReconnect"`
}

// ConnectBot registers a bot config and starts connecting
func (h *Handler) ConnectBot(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.Username == "" || req.Host == "" || req.Nickname == "" {
		WriteError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if req.Port == 0 {
		req.Port = h.config.Minecraft.DefaultPort
	}

	cfg := bots.BotConfig{
		ID:            req.ID,
		Username:      req.Username,
		Host:          req.Host,
		Port:          req.Port,
		Password:      req.Password,
		Nickname:      req.Nickname,
		AutoReconnect: true,
	}
	if req.AutoReconnect != nil {
		cfg.AutoReconnect = *req.AutoReconnect
	}

	if err := h.manager.Connect(cfg); err != nil {
		if errors.Is(err, bots.ErrAlreadyConnected) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("Failed to connect bot", logger.String("bot_id", req.ID), logger.Error(err))
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "botId": req.ID})
}

// DisconnectBot disconnects a bot, permanently when ?permanent=true
func (h *Handler) DisconnectBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	permanent := r.URL.Query().Get("permanent") == "true"
	h.manager.Disconnect(id, permanent)
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ReconnectBot re-dials a bot with its stored config
func (h *Handler) ReconnectBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Reconnect(id); err != nil {
		if errors.Is(err, bots.ErrConfigNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, bots.ErrAlreadyConnected) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("Failed to reconnect bot", logger.String("bot_id", id), logger.Error(err))
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// SendChat forwards a chat message through a bot's connection
func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		WriteError(w, http.StatusBadRequest, "message is required")
		return
	}

	h.manager.SendChat(id, req.Message)
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GetBotStatus returns the current state of one bot
func (h *Handler) GetBotStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := h.manager.GetStatus(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "bot not found")
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// GetAllBots returns the state of every tracked bot
func (h *Handler) GetAllBots(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.manager.GetAllStatuses())
}

// GetBotLogs returns the most recent chat log records for a bot
func (h *Handler) GetBotLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logs, err := h.chatLogStorage.GetByBot(id, h.config.Storage.MaxChatLogs)
	if err != nil {
		h.logger.Error("Failed to fetch chat logs", logger.String("bot_id", id), logger.Error(err))
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []*bots.ChatMessage{}
	}
	WriteJSON(w, http.StatusOK, logs)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]any{"error": message})
}
