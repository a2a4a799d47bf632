// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import "html/template"

// pickerTemplate is the room picker. Deliberately minimal: a room
// dropdown, a user ID field, and the Turnstile widget.
var pickerTemplate = template.Must(template.New("picker").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Request an invite</title>
  <script src="https://challenges.cloudflare.com/turnstile/v0/api.js" async defer></script>
</head>
<body>
  <h1>Request an invite</h1>
  <form method="post" action="/invite">
    <label for="room_id">Room</label>
    <select id="room_id" name="room_id">
      {{- range .Rooms}}
      <option value="{{.ID}}">{{.Label}}{{if .JoinRule}} ({{.JoinRule}}){{end}}</option>
      {{- end}}
    </select>
    <label for="user_id">Your Matrix ID</label>
    <input id="user_id" name="user_id" placeholder="@you:example.org" required>
    <div class="cf-turnstile" data-sitekey="{{.SiteKey}}"></div>
    <button type="submit">Request invite</button>
  </form>
</body>
</html>
`))
