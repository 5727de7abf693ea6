package safe

import (
	"CityOps/logger"

	"go.uber.org/zap"
)

// Go starts a goroutine that recovers from panic, so a bad frame handler
// cannot take the whole process down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered", zap.Any("panic", r))
			}
		}()
		f()
	}()
}
