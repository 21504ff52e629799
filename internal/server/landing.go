package server

import (
	"crypto/rand"
	"encoding/base64"
	"html/template"
	"net/http"

	"github.com/teemow/homedash/internal/logging"
	"github.com/teemow/homedash/internal/provider"
)

// messageTypes are the callback message types of one provider.
type messageTypes struct {
	Success string `json:"success"`
	Error   string `json:"error"`
}

type landingData struct {
	Nonce       string
	MessagePath string
	Types       map[string]messageTypes
}

// landingTemplate reads the authorization response from the fragment (or the
// query for providers that answer there), picks the message types from the
// provider prefix of state and posts the message to the callback server.
var landingTemplate = template.Must(template.New("landing").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>homedash</title>
  <style nonce="{{.Nonce}}">
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Arial,sans-serif;display:grid;place-items:center;min-height:100vh;margin:0}
    p{color:#334155}
  </style>
</head>
<body>
  <p id="status">Completing authorization...</p>
  <script nonce="{{.Nonce}}">
  (function () {
    var types = {{.Types}};
    var status = document.getElementById("status");
    var raw = window.location.hash.length > 1 ? window.location.hash.substring(1) : window.location.search.substring(1);
    var params = new URLSearchParams(raw);
    var state = params.get("state") || "";
    var t = types[state.split(".")[0]];
    if (!t) {
      status.textContent = "This authorization response is not for homedash.";
      return;
    }
    var failed = params.has("error");
    var message = {
      type: failed ? t.error : t.success,
      accessToken: params.get("access_token") || "",
      scope: params.get("scope") || "",
      expiresIn: parseInt(params.get("expires_in") || "0", 10) || 0,
      state: state,
      error: params.get("error") || "",
      errorDescription: params.get("error_description") || ""
    };
    history.replaceState(null, "", window.location.pathname);
    fetch({{.MessagePath}}, {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify(message)
    }).then(function () {
      status.textContent = failed ? "Authorization failed. You can close this window." : "Connected. You can close this window.";
      window.close();
    }).catch(function () {
      status.textContent = "Could not reach homedash. You can close this window.";
    });
  })();
  </script>
</body>
</html>
`))

func (s *CallbackServer) handleLanding(w http.ResponseWriter, _ *http.Request) {
	nonce := randomNonce()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; "+
		"style-src 'nonce-"+nonce+"'; "+
		"script-src 'nonce-"+nonce+"'; "+
		"connect-src 'self'; "+
		"base-uri 'none'; "+
		"frame-ancestors 'none'")

	data := landingData{
		Nonce:       nonce,
		MessagePath: MessagePath,
		Types:       s.types,
	}
	if err := landingTemplate.Execute(w, data); err != nil {
		s.logger.Warn("failed to render landing page", logging.Err(err))
	}
}

func landingTypes(registry *provider.Registry) map[string]messageTypes {
	types := make(map[string]messageTypes)
	for _, id := range provider.All {
		desc, err := registry.Descriptor(id)
		if err != nil {
			continue
		}
		types[id.String()] = messageTypes{Success: desc.SuccessType, Error: desc.ErrorType}
	}
	return types
}

func randomNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
