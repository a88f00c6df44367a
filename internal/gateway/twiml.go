package gateway

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// writeTwiML wraps a reply in the messaging envelope Twilio expects.
func writeTwiML(w http.ResponseWriter, text string) error {
	body, err := xml.Marshal(twimlResponse{Message: text})
	if err != nil {
		return fmt.Errorf("encode twiml: %w", err)
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, "%s%s", xml.Header, body); err != nil {
		return fmt.Errorf("write twiml: %w", err)
	}
	return nil
}
