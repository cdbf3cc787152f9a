package api

import (
	"html/template"
	"time"
)

var pageFuncs = template.FuncMap{
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
}

var pages = map[string]*template.Template{
	"index":          parsePage(indexHTML),
	"register":       parsePage(registerHTML),
	"member_details": parsePage(memberDetailsHTML),
	"public_profile": parsePage(publicProfileHTML),
}

func parsePage(body string) *template.Template {
	t := template.Must(template.New("layout").Funcs(pageFuncs).Parse(layoutHTML))
	return template.Must(t.New("content").Parse(body))
}

const layoutHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: #0a0a0a;
    color: #e0e0e0;
    display: flex;
    justify-content: center;
    min-height: 100vh;
    padding: 48px 16px;
  }
  .card {
    background: #1a1a1a;
    border: 1px solid #333;
    border-radius: 16px;
    padding: 40px;
    max-width: 760px;
    width: 100%;
    align-self: flex-start;
  }
  h1 { font-size: 20px; font-weight: 600; margin-bottom: 8px; }
  .subtitle { color: #888; font-size: 14px; margin-bottom: 24px; }
  a { color: #4ade80; text-decoration: none; }
  table { width: 100%; border-collapse: collapse; font-size: 14px; }
  th, td { text-align: left; padding: 8px; border-bottom: 1px solid #2a2a2a; }
  th { color: #888; font-weight: 500; }
  label { display: block; font-size: 13px; color: #888; margin: 16px 0 6px; }
  input, select {
    width: 100%; padding: 10px; border-radius: 8px;
    border: 1px solid #333; background: #111; color: #e0e0e0; font-size: 14px;
  }
  button {
    margin-top: 24px; padding: 10px 20px; border: 0; border-radius: 8px;
    background: #4ade80; color: #0a0a0a; font-weight: 600; cursor: pointer;
  }
  .error { color: #f87171; font-size: 14px; margin-bottom: 8px; }
  .qr { background: #fff; border-radius: 12px; padding: 10px; display: inline-block; margin: 16px 0; }
  .qr img { width: 260px; height: 260px; display: block; }
  dl { display: grid; grid-template-columns: 140px 1fr; row-gap: 8px; font-size: 14px; }
  dt { color: #888; }
  .blood { font-size: 40px; font-weight: 700; color: #f87171; margin: 16px 0; }
  .actions { margin-top: 24px; font-size: 14px; }
</style>
</head>
<body>
<div class="card">
{{template "content" .}}
</div>
</body>
</html>`

const indexHTML = `
<h1>Members</h1>
<p class="subtitle">{{len .Members}} registered &middot; <a href="/register">Register a member</a></p>
{{if .Members}}
<table>
  <tr><th>ID</th><th>Name</th><th>Contact</th><th>Blood group</th><th>Registered</th></tr>
  {{range .Members}}
  <tr>
    <td><a href="/member/{{.MemberID}}">{{.MemberID}}</a></td>
    <td>{{.Name}}</td>
    <td>{{.Contact}}</td>
    <td>{{.BloodGroup}}</td>
    <td>{{datetime .CreatedAt}}</td>
  </tr>
  {{end}}
</table>
{{else}}
<p class="subtitle">No members yet.</p>
{{end}}`

const registerHTML = `
<h1>Register a member</h1>
<p class="subtitle">A member ID and QR code are generated on submit.</p>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/register">
  <input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
  <label for="name">Name</label>
  <input id="name" name="name" value="{{.Form.Name}}" required>
  <label for="contact">Contact</label>
  <input id="contact" name="contact" value="{{.Form.Contact}}" required>
  <label for="blood_group">Blood group</label>
  <select id="blood_group" name="blood_group" required>
    <option value="">Select</option>
    {{range .BloodGroups}}<option value="{{.}}"{{if eq . $.Form.BloodGroup}} selected{{end}}>{{.}}</option>{{end}}
  </select>
  <button type="submit">Register</button>
</form>
<p class="actions"><a href="/">Back to members</a></p>`

const memberDetailsHTML = `
<h1>{{.Member.Name}}</h1>
<p class="subtitle">Member {{.Member.MemberID}}</p>
<dl>
  <dt>Member ID</dt><dd>{{.Member.MemberID}}</dd>
  <dt>Contact</dt><dd>{{.Member.Contact}}</dd>
  <dt>Blood group</dt><dd>{{.Member.BloodGroup}}</dd>
  <dt>Registered</dt><dd>{{datetime .Member.CreatedAt}}</dd>
</dl>
<div class="qr"><img src="/qr/{{.Member.MemberID}}" alt="QR code for {{.Member.MemberID}}"></div>
<p class="actions">
  <a href="/qr/{{.Member.MemberID}}" download="{{.Member.MemberID}}.png">Download QR</a> &middot;
  <a href="{{.ProfileURL}}">Public profile</a> &middot;
  <a href="/">Back to members</a>
</p>`

const publicProfileHTML = `
<h1>{{.Member.Name}}</h1>
<p class="subtitle">Member {{.Member.MemberID}}</p>
<div class="blood">{{.Member.BloodGroup}}</div>
<dl>
  <dt>Contact</dt><dd>{{.Member.Contact}}</dd>
  <dt>Member since</dt><dd>{{datetime .Member.CreatedAt}}</dd>
</dl>`
