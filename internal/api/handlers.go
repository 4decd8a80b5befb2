package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

const statusInProgress = "in_progress"

type pendingResponse struct {
	Status   string `json:"status"`
	VendorID int64  `json:"vendor_id"`
}

type deletedResponse struct {
	Status   string `json:"status"`
	VendorID int64  `json:"vendor_id"`
}

func (s *Server) listVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := s.svc.ListVendors(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if vendors == nil {
		vendors = []menu.Vendor{}
	}
	writeJSON(w, http.StatusOK, vendors)
}

func (s *Server) registerVendor(w http.ResponseWriter, r *http.Request) {
	var in menu.VendorInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		s.fail(w, r, fmt.Errorf("%w: invalid JSON body: %w", menu.ErrValidation, err))
		return
	}
	v, err := s.svc.RegisterVendor(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) getVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	v, err := s.svc.GetVendor(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) vendorStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	status, err := s.svc.VendorStatus(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) deleteVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteVendor(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Status: "deleted", VendorID: id})
}

// vendorMeals never blocks on a scrape: a miss answers 202 and the worker
// fills the cache.
func (s *Server) vendorMeals(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	res, err := s.svc.GetMeals(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Pending {
		writeJSON(w, http.StatusAccepted, pendingResponse{Status: statusInProgress, VendorID: id})
		return
	}
	writeMeals(w, res.Meals)
}

func (s *Server) vendorMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	meals, err := s.svc.GetMenu(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeMeals(w, meals)
}

func (s *Server) forceRescrape(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	meals, err := s.svc.ForceRescrape(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeMeals(w, meals)
}

func (s *Server) refreshMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	v, err := s.svc.RefreshMetadata(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) listMeals(w http.ResponseWriter, r *http.Request) {
	meals, err := s.svc.ListMeals(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeMeals(w, meals)
}

func (s *Server) deleteMeal(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteMeal(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, r, fmt.Errorf("%w: invalid id %q", menu.ErrValidation, raw))
		return 0, false
	}
	return id, true
}

func writeMeals(w http.ResponseWriter, meals []menu.Meal) {
	if meals == nil {
		meals = []menu.Meal{}
	}
	writeJSON(w, http.StatusOK, meals)
}
