// Package peering mounts the peering lifecycle's HTTP surface: init
// and verify are unauthenticated (a prospective peer has no token
// yet); every other route requires the bearer token verify issued.
package peering

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/autopeerd/autopeerd/pkg/api/errors"
	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/lifecycle"
	"github.com/autopeerd/autopeerd/pkg/peering"
	"github.com/autopeerd/autopeerd/pkg/token"
)

// Routes holds the Peering Router's dependencies.
type Routes struct {
	Engine       *lifecycle.Engine
	Tokens       *token.Service
	CookieDomain string
}

// Router mounts the peering HTTP surface under its caller's chosen
// prefix (conventionally "/peering").
func Router(engine *lifecycle.Engine, tokens *token.Service, cookieDomain string) http.Handler {
	routes := &Routes{Engine: engine, Tokens: tokens, CookieDomain: cookieDomain}

	r := chi.NewRouter()
	r.Post("/init", apierrors.ErrorHandler(routes.init))
	r.Post("/verify", apierrors.ErrorHandler(routes.verify))

	r.Group(func(r chi.Router) {
		r.Use(RequireToken(tokens))
		r.Post("/deploy", apierrors.ErrorHandler(routes.deploy))
		r.Get("/status", apierrors.ErrorHandler(routes.status))
		r.Get("/config", apierrors.ErrorHandler(routes.status))
		r.Patch("/update", apierrors.ErrorHandler(routes.update))
		r.Post("/activate", apierrors.ErrorHandler(routes.activate))
		r.Post("/deactivate", apierrors.ErrorHandler(routes.deactivate))
		r.Delete("/", apierrors.ErrorHandler(routes.delete))
	})

	return r
}

type initRequest struct {
	ASN uint32 `json:"asn"`
}

type initResponse struct {
	Challenge      string `json:"challenge"`
	PGPFingerprint string `json:"pgp_fingerprint"`
}

func (rt *Routes) init(w http.ResponseWriter, r *http.Request) error {
	var req initRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	challenge, fingerprint, err := rt.Engine.Init(r.Context(), req.ASN)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, initResponse{Challenge: challenge, PGPFingerprint: fingerprint})
}

type verifyRequest struct {
	ASN             uint32 `json:"asn"`
	SignedChallenge string `json:"signed_challenge"`
	PublicKey       string `json:"public_key"`
	WireguardKey    string `json:"wg_public_key"`
	Endpoint        string `json:"endpoint"`
}

type verifyResponse struct {
	Token           string `json:"token"`
	WireguardConfig string `json:"wireguard_config"`
}

func (rt *Routes) verify(w http.ResponseWriter, r *http.Request) error {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	tok, configText, err := rt.Engine.Verify(r.Context(), req.ASN, req.SignedChallenge, req.PublicKey, req.WireguardKey, req.Endpoint)
	if err != nil {
		return err
	}

	setTokenCookie(w, tok, rt.CookieDomain)
	return writeJSON(w, http.StatusOK, verifyResponse{Token: tok, WireguardConfig: configText})
}

type deployRequest struct {
	ASN          uint32 `json:"asn,omitempty"`
	WireguardKey string `json:"wg_public_key,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
}

// checkASNMatch enforces that the ASN proven by the bearer token is
// authoritative: an ASN named elsewhere in the request body must agree
// with it, or the request is rejected as forbidden.
func checkASNMatch(tokenASN, bodyASN uint32) error {
	if bodyASN != 0 && bodyASN != tokenASN {
		return errors.NewForbiddenError("asn in request body does not match the token's asn", nil)
	}
	return nil
}

type deploymentResponse struct {
	Deployment peering.StatusView `json:"deployment"`
}

func (rt *Routes) deploy(w http.ResponseWriter, r *http.Request) error {
	asn := asnFromContext(r.Context())

	var req deployRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		return err
	}
	if err := checkASNMatch(asn, req.ASN); err != nil {
		return err
	}

	// An endpoint override at deploy time reuses update's re-activation
	// path; verify() remains authoritative for peer key material, so
	// wg_public_key is accepted but not mutated here.
	if req.Endpoint != "" {
		view, err := rt.Engine.Update(r.Context(), asn, req.Endpoint)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, deploymentResponse{Deployment: view})
	}

	if err := rt.Engine.Deploy(r.Context(), asn); err != nil {
		return err
	}
	view, err := rt.Engine.Status(asn)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, deploymentResponse{Deployment: view})
}

func (rt *Routes) status(w http.ResponseWriter, r *http.Request) error {
	asn := asnFromContext(r.Context())
	view, err := rt.Engine.Status(asn)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, deploymentResponse{Deployment: view})
}

type updateRequest struct {
	ASN      uint32 `json:"asn,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

type statusResponse struct {
	Status peering.StatusView `json:"status"`
}

func (rt *Routes) update(w http.ResponseWriter, r *http.Request) error {
	asn := asnFromContext(r.Context())

	var req updateRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		return err
	}
	if err := checkASNMatch(asn, req.ASN); err != nil {
		return err
	}

	view, err := rt.Engine.Update(r.Context(), asn, req.Endpoint)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, statusResponse{Status: view})
}

func (rt *Routes) activate(w http.ResponseWriter, r *http.Request) error {
	asn := asnFromContext(r.Context())
	if err := rt.Engine.Deploy(r.Context(), asn); err != nil {
		return err
	}
	view, err := rt.Engine.Status(asn)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, statusResponse{Status: view})
}

func (rt *Routes) deactivate(w http.ResponseWriter, r *http.Request) error {
	asn := asnFromContext(r.Context())
	if err := rt.Engine.Deactivate(r.Context(), asn); err != nil {
		return err
	}
	view, err := rt.Engine.Status(asn)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, statusResponse{Status: view})
}

func (rt *Routes) delete(w http.ResponseWriter, r *http.Request) error {
	asn := asnFromContext(r.Context())
	if err := rt.Engine.Delete(r.Context(), asn); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, statusResponse{Status: peering.StatusView{ASN: asn, Status: peering.StatusInactive}})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.NewBadRequestError("request body is required", nil)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewBadRequestError("malformed JSON body", err)
	}
	return nil
}

// decodeOptionalJSON decodes a body that may legitimately be empty
// (deploy, update with no fields).
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewBadRequestError("malformed JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(body)
}
