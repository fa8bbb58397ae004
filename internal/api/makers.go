package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/models"
)

func makerID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func (h *handlers) listMakers(w http.ResponseWriter, r *http.Request) {
	makers, err := h.svc.ListMakers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if makers == nil {
		makers = []models.MakerSummary{}
	}
	writeJSON(w, http.StatusOK, makers)
}

func (h *handlers) addMaker(w http.ResponseWriter, r *http.Request) {
	var req models.AddMakerRequest
	if err := decode(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	sum, err := h.svc.AddMaker(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (h *handlers) getMaker(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetMaker(r.Context(), makerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handlers) removeMaker(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveMaker(r.Context(), makerID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lifecycle adapts a service call that only reports an error.
func (h *handlers) lifecycle(op func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context(), makerID(r)); err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

func (h *handlers) getMakerConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.MakerConfig(r.Context(), makerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handlers) saveMakerConfig(w http.ResponseWriter, r *http.Request) {
	var cfg files.MakerFileConfig
	if err := decode(w, r, &cfg, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	saved, err := h.svc.SaveMakerConfig(r.Context(), makerID(r), cfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handlers) newAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := h.svc.NewAddress(r.Context(), makerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr})
}

func (h *handlers) send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := decode(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	txid, err := h.svc.Send(r.Context(), makerID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"txid": txid})
}

func (h *handlers) balances(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Balances(r.Context(), makerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handlers) utxos(w http.ResponseWriter, r *http.Request) {
	utxos, err := h.svc.UTXOs(r.Context(), makerID(r), r.URL.Query().Get("kind"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, utxos)
}

func (h *handlers) fidelity(w http.ResponseWriter, r *http.Request) {
	bonds, err := h.svc.Fidelity(r.Context(), makerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bonds)
}

func (h *handlers) torAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := h.svc.TorAddress(r.Context(), makerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"torAddress": addr})
}

func (h *handlers) dataDir(w http.ResponseWriter, r *http.Request) {
	dir, err := h.svc.DataDir(r.Context(), makerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"dataDir": dir})
}

func (h *handlers) swaps(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	swaps, err := h.svc.Swaps(r.Context(), makerID(r), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, swaps)
}

func (h *handlers) logs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logs, err := h.svc.Logs(r.Context(), makerID(r), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
