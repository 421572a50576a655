package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/ignatzorin/homemaster-backend/internal/logger"
)

// SafeGo запускает горутину с обработкой panic: упавший фоновой процесс
// не должен ронять сервер.
func SafeGo(fn func()) {
	go func() {
		defer recoverPanic()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverPanic()
		fn(ctx)
	}()
}

func recoverPanic() {
	if r := recover(); r != nil {
		if logger.Log != nil {
			logger.Log.Errorf("Panic in goroutine: %v\nStack trace:\n%s", r, debug.Stack())
		}
	}
}
