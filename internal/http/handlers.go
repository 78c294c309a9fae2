package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"finny/internal/billing"
	"finny/internal/core"
	"finny/internal/log"
)

func handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.AllCategoryInfo())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r, s.budget.CurrentPeriod())
	if err != nil {
		writeServiceError(w, r, log.OpDashboard, badRequest(err))
		return
	}
	d, err := s.budget.Dashboard(r.Context(), UserID(r.Context()), period)
	if err != nil {
		writeServiceError(w, r, log.OpDashboard, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAnnual(w http.ResponseWriter, r *http.Request) {
	year := s.budget.CurrentPeriod().Year
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeServiceError(w, r, log.OpAnnual, badRequest(fmt.Errorf("year: %w", core.ErrInvalidYear)))
			return
		}
		year = y
	}
	sum, err := s.budget.Annual(r.Context(), UserID(r.Context()), year)
	if err != nil {
		writeServiceError(w, r, log.OpAnnual, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.budget.Usage(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, log.OpUsage, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r, s.budget.CurrentPeriod())
	if err != nil {
		writeServiceError(w, r, log.OpListTransactions, badRequest(err))
		return
	}
	txs, err := s.budget.Transactions(r.Context(), UserID(r.Context()), period)
	if err != nil {
		writeServiceError(w, r, log.OpListTransactions, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month":        period.Month,
		"year":         period.Year,
		"transactions": txs,
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, log.OpAddTransaction, badRequest(err))
		return
	}
	t, err := req.toTransaction(s.now())
	if err != nil {
		writeServiceError(w, r, log.OpAddTransaction, badRequest(err))
		return
	}
	created, err := s.budget.AddTransaction(r.Context(), UserID(r.Context()), t)
	if err != nil {
		writeServiceError(w, r, log.OpAddTransaction, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.budget.RemoveTransaction(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, log.OpRemoveTransaction, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateFixedExpense(w http.ResponseWriter, r *http.Request) {
	var req fixedExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, log.OpAddFixedExpense, badRequest(err))
		return
	}
	created, err := s.budget.AddFixedExpense(r.Context(), UserID(r.Context()), req.toFixedExpense())
	if err != nil {
		writeServiceError(w, r, log.OpAddFixedExpense, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handlePatchFixedExpense(w http.ResponseWriter, r *http.Request) {
	var req fixedExpensePatch
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, log.OpUpdateFixedExpense, badRequest(err))
		return
	}
	ctx, userID, id := r.Context(), UserID(r.Context()), r.PathValue("id")

	if req.Toggle {
		updated, err := s.budget.ToggleFixedExpense(ctx, userID, id)
		if err != nil {
			writeServiceError(w, r, log.OpUpdateFixedExpense, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}

	updated, err := s.budget.UpdateFixedExpense(ctx, userID, id, req.apply)
	if err != nil {
		writeServiceError(w, r, log.OpUpdateFixedExpense, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteFixedExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.budget.RemoveFixedExpense(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, log.OpRemoveFixedExpense, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTemporaryExpense(w http.ResponseWriter, r *http.Request) {
	var req temporaryExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, log.OpAddTemporaryExpense, badRequest(err))
		return
	}
	e, err := req.toTemporaryExpense()
	if err != nil {
		writeServiceError(w, r, log.OpAddTemporaryExpense, badRequest(err))
		return
	}
	created, err := s.budget.AddTemporaryExpense(r.Context(), UserID(r.Context()), e)
	if err != nil {
		writeServiceError(w, r, log.OpAddTemporaryExpense, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteTemporaryExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.budget.RemoveTemporaryExpense(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, log.OpRemoveTemporaryExpense, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, log.OpSetGoal, badRequest(err))
		return
	}
	g := core.MonthlyGoal{Month: req.Month, Year: req.Year, TargetAmount: req.TargetAmount}
	if err := s.budget.SetMonthlyGoal(r.Context(), UserID(r.Context()), g); err != nil {
		writeServiceError(w, r, log.OpSetGoal, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type profileResponse struct {
	Profile      core.Profile         `json:"profile"`
	Subscription billing.Subscription `json:"subscription"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, userID := r.Context(), UserID(r.Context())
	p, err := s.budget.Profile(ctx, userID)
	if err != nil {
		writeServiceError(w, r, log.OpProfile, err)
		return
	}
	sub, err := s.budget.Subscription(ctx, userID)
	if err != nil {
		writeServiceError(w, r, log.OpProfile, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p, Subscription: sub})
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, log.OpSaveProfile, badRequest(err))
		return
	}
	saved, err := s.budget.SaveProfile(r.Context(), UserID(r.Context()), req.toProfile())
	if err != nil {
		writeServiceError(w, r, log.OpSaveProfile, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type stateResponse struct {
	Version  uint64        `json:"version"`
	Snapshot core.Snapshot `json:"snapshot"`
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, log.OpOnboarding, badRequest(err))
		return
	}
	fixed := make([]core.FixedExpense, 0, len(req.FixedExpenses))
	for _, f := range req.FixedExpenses {
		fixed = append(fixed, f.toFixedExpense())
	}
	st, err := s.budget.CompleteOnboarding(r.Context(), UserID(r.Context()), req.Profile.toProfile(), fixed)
	if err != nil {
		writeServiceError(w, r, log.OpOnboarding, err)
		return
	}
	writeJSON(w, http.StatusCreated, stateResponse{Version: st.Version, Snapshot: st.Snapshot})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.budget.Export(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, log.OpExport, err)
		return
	}
	name := fmt.Sprintf("finny-backup-%s.json", s.now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeServiceError(w, r, log.OpImport, badRequest(err))
		return
	}
	if len(data) > maxBodyBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "backup too large")
		return
	}
	st, err := s.budget.Import(r.Context(), UserID(r.Context()), data)
	if err != nil {
		writeServiceError(w, r, log.OpImport, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Version: st.Version, Snapshot: st.Snapshot})
}
