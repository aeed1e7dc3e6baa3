package controlplane

import (
	"net/http"

	"github.com/fentz26/jml/internal/models"
	"github.com/go-chi/chi/v5"
)

// RegisterDirectoryRoutes mounts directory administration endpoints.
func RegisterDirectoryRoutes(r chi.Router, svc *Service) {
	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", handleListUsers(svc))
		r.Post("/", handleCreateUser(svc))
		r.Patch("/{id}", handleUpdateUser(svc))
		r.Get("/{id}/access", handleUserAccess(svc))
	})
	r.Post("/api/apps", handleCreateApp(svc))
	r.Post("/api/templates", handleCreateTemplate(svc))
	r.Post("/api/access", handleGrantAccess(svc))
	r.Post("/api/oauth-tokens", handleCreateOAuthToken(svc))
}

type updateUserRequest struct {
	Department *string            `json:"department"`
	JobTitle   *string            `json:"jobTitle"`
	Manager    *string            `json:"manager"`
	Status     *models.UserStatus `json:"status"`
}

func handleListUsers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := svc.ListUsers(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if users == nil {
			users = []models.User{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func handleCreateUser(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u models.User
		if err := decodeJSON(r, &u); err != nil {
			writeError(w, err)
			return
		}
		created, err := svc.CreateUser(r.Context(), u)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleUpdateUser(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		u, err := svc.UpdateUser(r.Context(), chi.URLParam(r, "id"), models.UserUpdate{
			Department: req.Department,
			JobTitle:   req.JobTitle,
			Manager:    req.Manager,
			Status:     req.Status,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func handleUserAccess(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.UserAccess(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []models.UserAppAccess{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreateApp(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var app models.SaasApp
		if err := decodeJSON(r, &app); err != nil {
			writeError(w, err)
			return
		}
		created, err := svc.CreateSaasApp(r.Context(), app)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleCreateTemplate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tpl models.RoleTemplate
		if err := decodeJSON(r, &tpl); err != nil {
			writeError(w, err)
			return
		}
		created, err := svc.CreateRoleTemplate(r.Context(), tpl)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGrantAccess(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec models.UserAppAccess
		if err := decodeJSON(r, &rec); err != nil {
			writeError(w, err)
			return
		}
		created, err := svc.GrantAccess(r.Context(), rec)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleCreateOAuthToken(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tok models.OAuthToken
		if err := decodeJSON(r, &tok); err != nil {
			writeError(w, err)
			return
		}
		created, err := svc.CreateOAuthToken(r.Context(), tok)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}
