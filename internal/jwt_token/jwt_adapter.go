package jwttoken

import (
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/requestcontext"
)

// ToCaller turns validated claims into the request caller. The role claim
// must name a known role.
func ToCaller(claims *Claims) (requestcontext.Caller, error) {
	holderID, err := id.ParseHolderID(claims.Subject)
	if err != nil {
		return requestcontext.Caller{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token subject")
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return requestcontext.Caller{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token role")
	}
	var orgID id.OrgID
	if claims.OrgID != "" {
		if orgID, err = id.ParseOrgID(claims.OrgID); err != nil {
			return requestcontext.Caller{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token organization")
		}
	}
	return requestcontext.Caller{ID: holderID, Role: role, OrgID: orgID}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (requestcontext.Caller, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return requestcontext.Caller{}, err
	}
	return ToCaller(claims)
}
