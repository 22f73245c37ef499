package server

import (
	"html/template"
	"net/http"
	"net/url"
	"sort"

	"github.com/rs/zerolog/log"
)

var errorPageTemplate = template.Must(template.New("error_page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.AppName}}</title>
</head>
<body>
<h1>Login failed</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

// formPostTemplate auto-submits response parameters to the relying party.
// The noscript fallback leaves a manual button for script-less agents.
var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Redirecting</title>
</head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.Action}}">
{{- range .Params}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

type formParam struct {
	Name  string
	Value string
}

type formPostData struct {
	Action string
	Params []formParam
}

type errorPageData struct {
	AppName string
	Message string
}

func (s *Server) renderErrorPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := errorPageData{AppName: s.config.GetAppName(), Message: message}
	if err := errorPageTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("rendering error page failed")
	}
}

func (s *Server) renderFormPost(w http.ResponseWriter, action string, values url.Values) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]formParam, 0, len(names))
	for _, name := range names {
		params = append(params, formParam{Name: name, Value: values.Get(name)})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := formPostTemplate.Execute(w, formPostData{Action: action, Params: params}); err != nil {
		log.Error().Err(err).Msg("rendering form_post response failed")
	}
}
