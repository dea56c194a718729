package utils

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"

	"github.com/skip2/go-qrcode"
)

// GenerateUPIQR génère un QR d'intention UPI en base64 prêt à mettre dans
// <img src="...">. ref est la référence de commande passerelle, amount en
// roupies.
func GenerateUPIQR(ref string, amount float64) (string, error) {
	vpa := os.Getenv("UPI_VPA")
	if vpa == "" {
		return "", fmt.Errorf("UPI_VPA non configuré")
	}
	payee := os.Getenv("UPI_PAYEE_NAME")
	if payee == "" {
		payee = "Veyra"
	}

	q := url.Values{}
	q.Set("pa", vpa)
	q.Set("pn", payee)
	q.Set("am", fmt.Sprintf("%.2f", amount))
	q.Set("cu", "INR")
	q.Set("tn", ref)

	png, err := qrcode.Encode("upi://pay?"+q.Encode(), qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
