package auth

// Service locates the caller's credentials on inbound requests. Tokens are
// issued and verified by the backend API; this service only carries them.
type Service struct {
	cookieName string
	headerName string
}

// NewService constructs an auth service using the frontend's cookie name.
func NewService(cookieName string) *Service {
	if cookieName == "" {
		cookieName = "auth_token"
	}
	return &Service{
		cookieName: cookieName,
		headerName: "Authorization",
	}
}
