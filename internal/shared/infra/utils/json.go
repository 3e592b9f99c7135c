package utils

import (
	"encoding/json"

	"go.uber.org/zap"
)

// UnmarshalAndHandle decodifica data en T y, si es válido, se lo pasa a handler.
// El error de decodificación se registra y se devuelve al llamante.
func UnmarshalAndHandle[T any](log *zap.Logger, data []byte, handler func(T) error) error {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		log.Warn("Failed to unmarshal event data", zap.Error(err))
		return err
	}
	return handler(evt)
}
