package payloads

import "time"

// OptimizePayload описывает сообщение очереди с запросом на оптимизацию оригинала.
type OptimizePayload struct {
	FullKey     string    `json:"fullKey"`
	RequestedAt time.Time `json:"requestedAt"`
}
