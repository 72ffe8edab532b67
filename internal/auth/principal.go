package auth

import "strings"

// Principal is the verified identity carried by a bearer credential.
// A nil *Principal means the caller is anonymous.
type Principal struct {
	// SubjectID is the stable user identifier (the token's userId claim, or sub).
	SubjectID string
	// Email is optional.
	Email string
}

// ExtractBearer returns the token from an Authorization header value.
//
// The header must consist of exactly two space separated parts, the first being
// "Bearer". Anything else is treated as an absent credential and yields "".
func ExtractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
