package email

import (
	"html/template"
	"strings"
)

var confirmPromptTemplate = template.Must(template.New("confirm_prompt").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Check your email</title>
</head>
<body>
<h1>Check your email</h1>
<p>We sent a verification code to <strong>{{.Email}}</strong> to finish logging in to {{.DisplayOrigin}}.</p>
<form method="POST" action="{{.FormAction}}">
<input type="hidden" name="session" value="{{.SessionID}}">
<label for="code">Verification code</label>
<input type="text" id="code" name="code" autocomplete="one-time-code" required autofocus>
<button type="submit">Verify</button>
</form>
</body>
</html>
`))

type confirmPromptData struct {
	Email         string
	DisplayOrigin string
	SessionID     string
	FormAction    string
}

func renderConfirmPrompt(data confirmPromptData) (string, error) {
	var rendered strings.Builder
	if err := confirmPromptTemplate.Execute(&rendered, data); err != nil {
		return "", err
	}
	return rendered.String(), nil
}
