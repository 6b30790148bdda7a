package server

import "net/http"

const tokenCookieName = "ps_token"

// authorized checks for the admin token in the query string or a
// cookie set by a previous authorized request.
func (s *Server) authorized(r *http.Request) bool {
	if queryToken := r.URL.Query().Get("token"); queryToken != "" {
		return queryToken == s.token
	}

	cookie, err := r.Cookie(tokenCookieName)
	return err == nil && cookie.Value == s.token
}
