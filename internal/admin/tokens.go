package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/platform/httputil"
	"qualtrack/pkg/platform/sentinel"
	"qualtrack/pkg/requestcontext"
)

const (
	defaultTokenTTL = time.Hour
	maxTokenTTL     = 24 * time.Hour
)

// TokenIssuer signs access tokens for a holder.
type TokenIssuer interface {
	GenerateAccessToken(holderID id.HolderID, role id.Role, orgID id.OrgID, expiresIn time.Duration) (string, error)
}

// Roster resolves the holder a token is minted for.
type Roster interface {
	FindByID(ctx context.Context, holderID id.HolderID) (*profile.Profile, error)
}

type Option func(*Handler)

// WithTokenIssuer enables POST /admin/tokens. Role and organization always
// come from the stored profile.
func WithTokenIssuer(issuer TokenIssuer, roster Roster) Option {
	return func(h *Handler) {
		h.issuer = issuer
		h.roster = roster
	}
}

// IssueTokenRequest asks for an access token on behalf of a holder.
type IssueTokenRequest struct {
	HolderID  string `json:"holder_id"`
	TTLMinute int    `json:"ttl_minutes,omitempty"`

	holderID id.HolderID
}

func (r *IssueTokenRequest) Normalize() {
	r.HolderID = strings.TrimSpace(r.HolderID)
}

func (r *IssueTokenRequest) Validate() error {
	if r.HolderID == "" {
		return dErrors.New(dErrors.CodeValidation, "holder_id is required")
	}
	holderID, err := id.ParseHolderID(r.HolderID)
	if err != nil {
		return err
	}
	r.holderID = holderID
	if r.TTLMinute < 0 || time.Duration(r.TTLMinute)*time.Minute > maxTokenTTL {
		return dErrors.New(dErrors.CodeValidation, "ttl_minutes must be between 0 and 1440")
	}
	return nil
}

func (r *IssueTokenRequest) ttl() time.Duration {
	if r.TTLMinute == 0 {
		return defaultTokenTTL
	}
	return time.Duration(r.TTLMinute) * time.Minute
}

type IssueTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        id.Role   `json:"role"`
}

func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.roster.FindByID(ctx, req.holderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.New(dErrors.CodeNotFound, "holder not found")
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to load holder")
		}
		httputil.LogError(ctx, h.logger, "issue token failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	ttl := req.ttl()
	token, err := h.issuer.GenerateAccessToken(p.ID, p.Role, p.OrgID, ttl)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
		httputil.LogError(ctx, h.logger, "issue token failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "access token issued",
		"event", "token_issued",
		"log_type", "audit",
		"holder_id", p.ID,
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusCreated, &IssueTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   requestcontext.Now(ctx).Add(ttl),
		Role:        p.Role,
	})
}
