package entity

import "strings"

type Gateway string

const (
	GatewayPayU        Gateway = "payu"
	GatewayWompi       Gateway = "wompi"
	GatewayMercadoPago Gateway = "mercadopago"
)

func ParseGateway(raw string) (Gateway, bool) {
	switch Gateway(strings.ToLower(strings.TrimSpace(raw))) {
	case GatewayPayU:
		return GatewayPayU, true
	case GatewayWompi:
		return GatewayWompi, true
	case GatewayMercadoPago:
		return GatewayMercadoPago, true
	default:
		return "", false
	}
}
