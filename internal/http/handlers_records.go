package http

import (
	"net/http"
	"time"
)

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.ledger.ListAssets(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	asset, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.SaveAsset(r.Context(), asset); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetResponse(asset))
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteAsset(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.ledger.ListBills(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	now := time.Now()
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillResponse(b, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if !decodeBody(w, r, &req) {
		return
	}
	bill, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.SaveBill(r.Context(), bill); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillResponse(bill, time.Now()))
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteBill(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetBillPaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paid bool `json:"paid"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ledger.SetBillPaid(r.Context(), r.PathValue("id"), req.Paid); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := s.ledger.ListDeals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]dealResponse, 0, len(deals))
	for _, d := range deals {
		out = append(out, toDealResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveDeal(w http.ResponseWriter, r *http.Request) {
	var req dealRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deal, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.SaveDeal(r.Context(), deal); err != nil {
		writeDomainError(w, err)
		return
	}
	// Commission figures were derived server side; re-read for the response.
	deals, err := s.ledger.ListDeals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for _, d := range deals {
		if d.ID == deal.ID {
			writeJSON(w, http.StatusCreated, toDealResponse(d))
			return
		}
	}
	writeJSON(w, http.StatusCreated, toDealResponse(deal))
}

func (s *Server) handleDeleteDeal(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteDeal(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFarmOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := s.ledger.ListFarmOperations(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]farmOperationResponse, 0, len(ops))
	for _, o := range ops {
		out = append(out, toFarmOperationResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveFarmOperation(w http.ResponseWriter, r *http.Request) {
	var req farmOperationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	op, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.SaveFarmOperation(r.Context(), op); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFarmOperationResponse(op))
}

func (s *Server) handleDeleteFarmOperation(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteFarmOperation(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFamilyMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.ListFamilyMembers(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]familyMemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toFamilyMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveFamilyMember(w http.ResponseWriter, r *http.Request) {
	var req familyMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	member, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.SaveFamilyMember(r.Context(), member); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFamilyMemberResponse(member))
}

func (s *Server) handleDeleteFamilyMember(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteFamilyMember(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	uc, err := s.ledger.GetUserConfig(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserConfigResponse(uc))
}

// handleUpdateConfig updates profile settings. Changing the stored role
// is itself an operator action; the subscription field is not writable
// here at all.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req userConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated := req.toDomain()

	current, err := s.ledger.GetUserConfig(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if updated.Role == "" {
		updated.Role = current.Role
	}
	if updated.Role != current.Role && !s.requireSuperAdmin(w, r) {
		return
	}

	if err := s.ledger.UpdateUserConfig(r.Context(), updated); err != nil {
		writeDomainError(w, err)
		return
	}
	updated.SubscriptionStatus = current.SubscriptionStatus
	writeJSON(w, http.StatusOK, toUserConfigResponse(updated))
}
