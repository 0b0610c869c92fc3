package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nutrition-bot/internal/bot"
)

// SecretTokenHeader carries the secret set with setWebhook
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const msgSlowDown = "Too many messages. Please wait a few seconds and try again."

// handleWebhook handles POST /webhook/{botID}. Any 2xx tells Telegram the
// update was delivered, so processing failures are answered with 200 and
// a user-facing reply rather than an error status.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	botID := mux.Vars(r)["botID"]
	hook, ok := s.deps.Webhooks[botID]
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown bot", nil)
		return
	}

	if hook.Secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretTokenHeader)), []byte(hook.Secret)) != 1 {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid secret token", nil)
		return
	}

	var update bot.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid update body", nil)
		return
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"bot":      botID,
		"updateId": update.UpdateID,
	})

	if chatID := update.ChatID(); chatID != 0 && !s.rateLimiter.AllowChat(botID, chatID) {
		logger.WithField("chatId", chatID).Warn("Chat rate limited")
		if update.Message != nil {
			respondJSON(w, http.StatusOK, &bot.Reply{Method: "sendMessage", ChatID: chatID, Text: msgSlowDown})
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	reply := hook.Handler.Handle(ctx, &update)
	if reply == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	respondJSON(w, http.StatusOK, reply)
}
