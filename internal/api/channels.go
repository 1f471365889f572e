package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nmoncrief/meshgate/internal/mesh"
)

// channelView is the JSON shape of one channel slot.
type channelView struct {
	Index  int    `json:"channel_idx"`
	Name   string `json:"channel_name"`
	Secret string `json:"channel_secret"`
}

func channelViews(slots []mesh.ChannelSlot) []channelView {
	views := make([]channelView, 0, len(slots))
	for _, slot := range slots {
		views = append(views, channelView{
			Index:  slot.Index,
			Name:   slot.Name,
			Secret: slot.SecretHex(),
		})
	}
	return views
}

// handleListChannels returns the configured channel slots, served from the
// slot cache when warm.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	slots, err := s.channels.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channelViews(slots),
	})
}

// createChannelRequest is the POST /channels payload.
type createChannelRequest struct {
	Name string `json:"name"`
}

// handleCreateChannel adds a channel to the first free device slot.
func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	slots, err := s.channels.Create(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"channels": channelViews(slots),
	})
}

// handleDeleteChannel clears the slot holding the named channel.
func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeBadRequest(w, "invalid channel name")
		return
	}

	slots, err := s.channels.Delete(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channelViews(slots),
	})
}
