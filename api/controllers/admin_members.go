package controllers

import (
	"net/http"

	"github.com/dstarsfitness/dstars-backend/api/responses"
	"github.com/dstarsfitness/dstars-backend/api/validators"
	"github.com/dstarsfitness/dstars-backend/internal/members"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
)

// AdminListMembers lists members for the back office with search and
// cursor paging.
func AdminListMembers(svc members.AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "members service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListMembers(r.Context(), validators.SanitizeString(r.URL.Query().Get("search")), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"members":     members.FromModels(page.Members),
			"next_cursor": page.NextCursor,
		})
	}
}

// AdminGetMember fetches a single member with their plan.
func AdminGetMember(svc members.AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "members service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.GetMember(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*members.MemberDTO{"member": members.FromModel(member)})
	}
}

// AdminUpdateMember edits member details, status, or plan.
func AdminUpdateMember(svc members.AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "members service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body members.UpdateMemberInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.UpdateMember(r.Context(), id, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]*members.MemberDTO{"member": members.FromModel(member)})
	}
}

// AdminDeleteMember soft deletes a member.
func AdminDeleteMember(svc members.AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "members service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteMember(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// AdminIssueDownloadToken rotates a member's card download token so staff
// can recover a lost card link.
func AdminIssueDownloadToken(svc members.CardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := svc.IssueDownloadToken(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"download_token": token})
	}
}
