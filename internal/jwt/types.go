package jwt

type Role int

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Operator is the subject of an admin token.
type Operator struct {
	Id string `json:"id"`
}
