// Package session – artifact.go renders the scannable pairing token. The
// manager owns exactly one live artifact; it exists only while awaiting a
// scan and is cleared on ready or disconnect.
package session

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
)

// AuthArtifact is the opaque scannable pairing token in its renderable
// forms. The raw code is what the phone actually scans; the PNG data URI
// and terminal text are presentation variants of the same code.
type AuthArtifact struct {
	Code        string    `json:"code"`
	Terminal    string    `json:"terminal"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewAuthArtifact renders the terminal form eagerly; the image form is
// produced on demand by DataURI.
func NewAuthArtifact(code string) *AuthArtifact {
	var buf bytes.Buffer
	qrterminal.GenerateWithConfig(code, qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    &buf,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
	return &AuthArtifact{
		Code:        code,
		Terminal:    buf.String(),
		GeneratedAt: time.Now(),
	}
}

// DataURI renders the code as a PNG data URI suitable for an <img> tag.
func (a *AuthArtifact) DataURI() (string, error) {
	png, err := qrcode.Encode(a.Code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encoding pairing code image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
