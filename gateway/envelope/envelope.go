// Package envelope escreve o corpo de erro uniforme do gateway:
//
//	{"code": 404, "status": "Error", "message": "Route not found.", "data": null}
//
// Mensagens são fixas por código; detalhes internos (host do backend, causa)
// nunca vão para o cliente.
package envelope

import (
	"encoding/json"
	"net/http"
)

const StatusError = "Error"

var messages = map[int]string{
	http.StatusNotFound:           "Route not found.",
	http.StatusTooManyRequests:    "Rate limit exceeded.",
	http.StatusGatewayTimeout:     "Gateway timeout.",
	http.StatusServiceUnavailable: "Service unavailable.",
}

type Envelope struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// New monta o envelope para o código; códigos sem mensagem própria usam http.StatusText.
func New(code int) Envelope {
	msg, ok := messages[code]
	if !ok {
		msg = http.StatusText(code)
	}
	return Envelope{Code: code, Status: StatusError, Message: msg, Data: nil}
}

// Write grava o envelope com o status HTTP correspondente.
func Write(w http.ResponseWriter, code int) {
	body, err := json.Marshal(New(code))
	if err != nil {
		http.Error(w, http.StatusText(code), code)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
