package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/hearthshare/larder/pkg/access"
	"github.com/hearthshare/larder/pkg/catalog"
	"github.com/hearthshare/larder/pkg/observability"
)

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func (s *Server) handleGetAccessInfo(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	resourceType, err := catalog.ParseResourceType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.resolver.GetAccessInfo(r.Context(), householdID, resourceType, pathID(r, "id"))
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "no access")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleValidateAccessBulk(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())

	var body struct {
		Requests []struct {
			Type string `json:"type"`
			ID   int64  `json:"id"`
			Tier string `json:"tier"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requests := make([]access.TierRequest, 0, len(body.Requests))
	for _, req := range body.Requests {
		resourceType, err := catalog.ParseResourceType(req.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tier, err := access.ParseTier(req.Tier)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		requests = append(requests, access.TierRequest{
			Type: resourceType, ID: req.ID, RequiredTier: tier,
		})
	}

	results, err := s.resolver.ValidateAccessTiersBulk(r.Context(), householdID, requests)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"granted": results})
}

func (s *Server) handleValidateAction(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	resourceType, err := catalog.ParseResourceType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	allowed, err := s.resolver.ValidateAction(r.Context(), householdID, resourceType,
		pathID(r, "id"), access.Action(mux.Vars(r)["action"]))
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())

	created, err := s.subscriptions.Subscribe(r.Context(), householdID, pathID(r, "id"))
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"created": created})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())

	deleted, err := s.subscriptions.Unsubscribe(r.Context(), householdID, pathID(r, "id"))
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())

	collections, err := s.subscriptions.ListSubscribedCollections(r.Context(), householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"collections": collections})
}

func (s *Server) handleSubscriptionStats(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())

	stats, err := s.subscriptions.GetStats(r.Context(), householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// requireCopyable rejects forks of resources the household cannot even see.
func (s *Server) requireCopyable(w http.ResponseWriter, r *http.Request, resourceType catalog.ResourceType, id int64) bool {
	householdID := observability.GetHouseholdID(r.Context())
	allowed, err := s.resolver.ValidateAction(r.Context(), householdID, resourceType, id, access.ActionCopy)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return false
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "no access to resource")
		return false
	}
	return true
}

func (s *Server) handleForkCollection(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	collectionID := pathID(r, "id")
	if !s.requireCopyable(w, r, catalog.ResourceCollection, collectionID) {
		return
	}

	res, err := s.engine.CopyCollectionOptimized(r.Context(), collectionID, householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleForkRecipe(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	recipeID := pathID(r, "id")
	if !s.requireCopyable(w, r, catalog.ResourceRecipe, recipeID) {
		return
	}

	res, err := s.engine.CopyRecipeForEdit(r.Context(), recipeID, householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleForkIngredient(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	ingredientID := pathID(r, "id")
	if !s.requireCopyable(w, r, catalog.ResourceIngredient, ingredientID) {
		return
	}

	res, err := s.engine.CopyIngredientForEdit(r.Context(), ingredientID, householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCascadeFork(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	collectionID := pathID(r, "collectionID")
	recipeID := pathID(r, "recipeID")
	if !s.requireCopyable(w, r, catalog.ResourceCollection, collectionID) {
		return
	}

	res, err := s.engine.CascadeCopyWithContext(r.Context(), collectionID, recipeID, householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTriggerCascadeFork(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	collectionID := pathID(r, "collectionID")
	recipeID := pathID(r, "recipeID")
	if !s.requireCopyable(w, r, catalog.ResourceCollection, collectionID) {
		return
	}

	res, err := s.engine.TriggerCascadeCopyWithContext(r.Context(), collectionID, recipeID, householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCascadeForkIngredient(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	collectionID := pathID(r, "collectionID")
	recipeID := pathID(r, "recipeID")
	ingredientID := pathID(r, "ingredientID")
	if !s.requireCopyable(w, r, catalog.ResourceCollection, collectionID) {
		return
	}

	res, err := s.engine.CascadeCopyIngredientWithContext(r.Context(),
		collectionID, recipeID, ingredientID, householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	householdID := observability.GetHouseholdID(r.Context())
	recipeID := pathID(r, "id")

	canEdit, err := s.checker.CanEditResource(r.Context(), householdID, catalog.ResourceRecipe, recipeID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	if !canEdit {
		writeError(w, http.StatusForbidden, "recipe is not editable")
		return
	}

	result, err := s.conns.Primary().ExecContext(r.Context(),
		`DELETE FROM recipes WHERE id = $1`, recipeID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "recipe not found")
		return
	}

	// Junction rows cascade with the recipe; this pass collects the
	// ingredient copies those rows were the last reference to.
	cleanupRes, err := s.cleaner.PerformCompleteCleanupAfterRecipeDelete(r.Context(), recipeID, householdID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupRes)
}
