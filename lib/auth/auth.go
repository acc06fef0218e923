package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"agentdms/lib/util"

	"github.com/aws/aws-lambda-go/events"
)

// SuperAdminUserID is the seeded, immutable administrator that bypasses permission resolution.
// The zero value never matches, so a request without an identity cannot be mistaken for it.
const SuperAdminUserID int64 = 1

// Claims represents the JWT claims extracted from the API Gateway authorizer context.
// Roles are the globally held role names at token issue time and are informational only.
type Claims struct {
	UserID    int64    `json:"user_id"`
	Email     string   `json:"email"`
	CognitoID string   `json:"sub"`
	Username  string   `json:"username,omitempty"`
	Roles     []string `json:"roles"`
}

type claimsContextKey struct{}

// ExtractClaimsFromRequest extracts and parses JWT claims from API Gateway request
func ExtractClaimsFromRequest(request events.APIGatewayProxyRequest) (*Claims, error) {
	// Get claims from authorizer context
	var claimsMap map[string]interface{}
	var ok bool

	if authClaims, exists := request.RequestContext.Authorizer["claims"]; exists {
		claimsMap, ok = authClaims.(map[string]interface{})
	}

	// If claims not found, try direct access to authorizer (some API Gateway configurations)
	if !ok {
		claimsMap = request.RequestContext.Authorizer
		ok = (claimsMap != nil)
	}

	if !ok || claimsMap == nil {
		return nil, fmt.Errorf("claims not found in authorizer context")
	}

	userID, err := parseUserID(claimsMap)
	if err != nil {
		return nil, err
	}

	email, ok := claimsMap["email"].(string)
	if !ok {
		return nil, fmt.Errorf("email not found or invalid in claims")
	}

	cognitoID, ok := claimsMap["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("sub not found or invalid in claims")
	}

	username, _ := claimsMap["username"].(string)

	return &Claims{
		UserID:    userID,
		Email:     email,
		CognitoID: cognitoID,
		Username:  username,
		Roles:     parseRoles(claimsMap["roles"]),
	}, nil
}

func parseUserID(claimsMap map[string]interface{}) (int64, error) {
	userIDValue, exists := claimsMap["user_id"]
	if !exists {
		return 0, fmt.Errorf("user_id not found in claims")
	}

	var userID int64
	switch v := userIDValue.(type) {
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse user_id string: %w", err)
		}
		userID = parsed
	case float64:
		// JSON numbers are parsed as float64
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("user_id is not an integer")
		}
		userID = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("failed to parse user_id number: %w", err)
		}
		userID = parsed
	default:
		return 0, fmt.Errorf("user_id has unexpected type")
	}

	if userID <= 0 {
		return 0, fmt.Errorf("user_id must be positive")
	}
	return userID, nil
}

// parseRoles accepts a JSON array, a JSON encoded array string or a comma separated string
func parseRoles(value interface{}) []string {
	switch v := value.(type) {
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				roles = append(roles, strings.TrimSpace(s))
			}
		}
		return roles
	case []string:
		return util.SplitCSV(strings.Join(v, ","))
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var roles []string
			if err := json.Unmarshal([]byte(trimmed), &roles); err == nil {
				return roles
			}
		}
		return util.SplitCSV(trimmed)
	default:
		return nil
	}
}

// HasRole reports whether the token listed the named role
func (c *Claims) HasRole(roleName string) bool {
	for _, role := range c.Roles {
		if role == roleName {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the claims belong to the built-in administrator
func (c *Claims) IsSuperAdmin() bool {
	return c != nil && c.UserID == SuperAdminUserID
}

// WithClaims returns a copy of ctx carrying the request principal
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the principal stored by WithClaims
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok && claims != nil
}

// ToJSON converts claims to JSON string for logging
func (c *Claims) ToJSON() string {
	data, _ := json.Marshal(c)
	return string(data)
}
