package webhook

import (
	"html/template"
	"net/http"
	"strings"
)

var authorizePage = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Link your account</title>
</head>
<body>
<h1>Link your account</h1>
<p>Account linking token: {{.LinkingToken}}</p>
<p>Authorization code: {{.AuthCode}}</p>
<p><a href="{{.SuccessURI}}">Complete account link</a></p>
<p><a href="{{.RedirectURI}}">Cancel</a></p>
</body>
</html>
`))

type authorizeView struct {
	LinkingToken string
	AuthCode     string
	RedirectURI  string
	SuccessURI   string
}

// handleAuthorize renders the account-linking confirmation page. The
// platform supplies redirect_uri; following the success link returns the
// generated authorization code to it.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		s.respondError(w, http.StatusBadRequest, "redirect_uri is required")
		return
	}

	code := s.newCode()
	view := authorizeView{
		LinkingToken: q.Get("account_linking_token"),
		AuthCode:     code,
		RedirectURI:  redirectURI,
		SuccessURI:   successURI(redirectURI, code),
	}

	s.logger.Info("account link page issued")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := authorizePage.Execute(w, view); err != nil {
		s.logger.Error("render authorize page", "error", err)
	}
}

// successURI appends the authorization code to the platform redirect.
func successURI(redirectURI, code string) string {
	sep := "&"
	if !strings.Contains(redirectURI, "?") {
		sep = "?"
	}
	return redirectURI + sep + "authorization_code=" + code
}
