package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

const principalHeader = "X-MS-CLIENT-PRINCIPAL"

var errNoIdentity = errors.New("handler: no caller identity in request")

// clientPrincipal is the decoded X-MS-CLIENT-PRINCIPAL header.
type clientPrincipal struct {
	Claims []struct {
		Typ string `json:"typ"`
		Val string `json:"val"`
	} `json:"claims"`
}

// resolveIdentity prefers authorizer claims (email, then preferred_username)
// and falls back to the base64 principal header.
func resolveIdentity(req events.APIGatewayProxyRequest) (string, error) {
	if id := identityFromAuthorizer(req.RequestContext.Authorizer); id != "" {
		return id, nil
	}
	raw := headerValue(req.Headers, principalHeader)
	if raw == "" {
		return "", errNoIdentity
	}
	return identityFromPrincipal(raw)
}

func identityFromAuthorizer(auth map[string]interface{}) string {
	if len(auth) == 0 {
		return ""
	}
	sources := []map[string]interface{}{auth}
	if claims, ok := auth["claims"].(map[string]interface{}); ok {
		sources = append([]map[string]interface{}{claims}, sources...)
	}
	for _, name := range []string{"email", "preferred_username"} {
		for _, src := range sources {
			if v, ok := src[name].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func identityFromPrincipal(raw string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(raw)
		if err != nil {
			return "", fmt.Errorf("handler: decode %s: %w", principalHeader, err)
		}
	}
	var p clientPrincipal
	if err := json.Unmarshal(decoded, &p); err != nil {
		return "", fmt.Errorf("handler: parse %s: %w", principalHeader, err)
	}
	for _, c := range p.Claims {
		if c.Typ == "preferred_username" && strings.TrimSpace(c.Val) != "" {
			return strings.TrimSpace(c.Val), nil
		}
	}
	return "", errNoIdentity
}
