package main

import "html/template"

const pageStyle = `
h1 { text-align: center; margin-top: 3%; }
body { text-align: center; font-family: sans-serif; }
fieldset, pre { width: 400px; margin: 0 auto 50px; background-color: #ffc; min-height: 1em; }
fieldset { text-align: left; }
.client { width: 400px; margin: 0 auto 30px; }
.form-login { width: 300px; margin: 20px auto; padding: 20px; border: 1px solid black; }
.form-line { margin: 5px 0 0 0; }
.submit { width: 100%; }
.error { margin-top: 10%; }
`

var loginTmpl = template.Must(template.New("login").Parse(`<!doctype html>
<html>
<head>
<title>Login</title>
<style>` + pageStyle + `</style>
</head>
<body>
<form method="POST" action="{{.Action}}">
  <h1>Authenticate</h1>
  <div>You are attempting to login with client <pre>{{.ClientID}}</pre></div>
  {{with .Client}}
  <div class="client">
    {{if .Logo}}<img src="{{.Logo}}" alt="[logo]">{{end}}
    {{if .Name}}<span>{{.Name}}</span>{{end}}
    <div>
      {{if .URI}}<a href="{{.URI}}">Webpage</a>{{end}}
      {{if .TOS}}<a href="{{.TOS}}">Terms of Service</a>{{end}}
      {{if .Policy}}<a href="{{.Policy}}">Privacy Policy</a>{{end}}
    </div>
  </div>
  {{end}}
  {{with .Scopes}}
  <div>It is requesting the following scopes, uncheck any you do not wish to grant:</div>
  <fieldset>
    <legend>Scopes</legend>
    {{range $i, $s := .}}
    <div>
      <input id="scope_{{$i}}" type="checkbox" name="scopes[]" value="{{$s}}" checked>
      <label for="scope_{{$i}}">{{$s}}</label>
    </div>
    {{end}}
  </fieldset>
  {{end}}
  <div>After login you will be redirected to <pre>{{.RedirectURI}}</pre></div>
  <div class="form-login">
    <input type="hidden" name="_csrf" value="{{.CSRF}}">
    <p class="form-line">Logging in as:<br><span>{{.UserURL}}</span></p>
    <div class="form-line">
      <label for="password">Password:</label><br>
      <input type="password" name="password" id="password" autofocus>
    </div>
    <div class="form-line"><input class="submit" type="submit" value="Submit"></div>
  </div>
</form>
</body>
</html>
`))

var errorTmpl = template.Must(template.New("error").Parse(`<!doctype html>
<html>
<head>
<title>Error: {{.Title}}</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="error">
  <h1>Error: {{.Title}}</h1>
  <p>{{.Body}}</p>
</div>
</body>
</html>
`))
