package staticfile

import (
	"crypto/subtle"
	"net/http"
)

// checkAuth enforces HTTP Basic auth when credentials are configured. Both
// fields are always compared so timing does not reveal which one was wrong.
func (s *StaticFileServer) checkAuth(r *http.Request) *Error {
	creds := s.opts.Credentials
	if creds == nil {
		return nil
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return newError(KindUnauthorized, r.RequestURI, "missing basic auth credentials", nil)
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(creds.User))
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(creds.Password))
	if userOK&passOK != 1 {
		return newError(KindUnauthorized, r.RequestURI, "invalid basic auth credentials", nil)
	}
	return nil
}
