// Package provider holds the extractor logic shared by every supplier
// adapter (§4.4): the common output shape and LPA/QR synthesis rules. The
// concrete adapters (airalo, esimcard, mobimatter, redteago) each live in
// their own subpackage, mirroring pkg/inquirychannel's layout.
package provider

import (
	"fmt"

	"github.com/haneulsim/esimcore/pkg/channel"
)

// SIMFields is the supplier-specific fields an adapter parses out of its
// raw response before handing them to ExtractArtifact.
type SIMFields struct {
	ICCID           string
	QRCodeURL       string
	ActivationCode  string
	ProviderOrderID string
	SMDPAddress     string // LPA part 2, present when only LPA data is returned
	MatchingID      string // LPA part 3
}

// ExtractArtifact builds the common {qr_code_url, iccid, activation_code,
// provider_order_id} shape (§4.4). If ActivationCode is empty but LPA parts
// are present, it synthesizes "LPA:1$<smdp>$<matching_id>". If QRCodeURL is
// empty but an activation code (given or synthesized) is present, it
// synthesizes a deterministic image-encoding URL from that code.
func ExtractArtifact(f SIMFields) channel.ESIMArtifact {
	activationCode := f.ActivationCode
	if activationCode == "" && f.SMDPAddress != "" && f.MatchingID != "" {
		activationCode = fmt.Sprintf("LPA:1$%s$%s", f.SMDPAddress, f.MatchingID)
	}

	qrURL := f.QRCodeURL
	if qrURL == "" && activationCode != "" {
		qrURL = SynthesizeQRURL(activationCode)
	}

	return channel.ESIMArtifact{
		QRCodeURL:       qrURL,
		ICCID:           f.ICCID,
		ActivationCode:  activationCode,
		ProviderOrderID: f.ProviderOrderID,
	}
}

// SynthesizeQRURL deterministically encodes an activation code into a
// scannable QR image URL when the supplier doesn't provide one of its own.
func SynthesizeQRURL(activationCode string) string {
	return fmt.Sprintf("https://api.esimcore.internal/qr?data=%s", activationCode)
}
