package broker

import (
	"html/template"
	"sort"
	"strings"
)

// loginPromptTemplate asks the user for the email they want to log in with.
// Every originally supplied parameter rides along as a hidden field so the
// resubmission is an exact replay of the RP's request plus the login_hint.
var loginPromptTemplate = template.Must(template.New("login_prompt").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.DisplayOrigin}}</title>
</head>
<body>
<h1>{{.Title}} {{.DisplayOrigin}}</h1>
<p>{{.Explanation}}</p>
<form method="{{.Method}}" action="{{.FormAction}}">
{{- range .Params}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<label for="login_hint">{{.Use}}</label>
<input type="email" id="login_hint" name="login_hint" required autofocus>
<button type="submit">Continue</button>
</form>
</body>
</html>
`))

type promptParam struct {
	Name  string
	Value string
}

type loginPromptData struct {
	Title         string
	DisplayOrigin string
	Explanation   string
	Use           string
	Method        string
	FormAction    string
	Params        []promptParam
}

func (s *Service) renderLoginPrompt(reqCtx *RequestContext, clientID string) (string, error) {
	// Stable field order keeps the rendered page deterministic.
	names := make([]string, 0, len(reqCtx.Params))
	for name := range reqCtx.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]promptParam, 0, len(names))
	for _, name := range names {
		for _, value := range reqCtx.Params[name] {
			params = append(params, promptParam{Name: name, Value: value})
		}
	}

	data := loginPromptData{
		Title:         "Finish logging in to",
		DisplayOrigin: clientID,
		Explanation:   "Login with your email.",
		Use:           "Please specify the email you wish to use to login with",
		Method:        reqCtx.Method,
		FormAction:    s.publicURL + "/auth",
		Params:        params,
	}

	var rendered strings.Builder
	if err := loginPromptTemplate.Execute(&rendered, data); err != nil {
		return "", err
	}
	return rendered.String(), nil
}
