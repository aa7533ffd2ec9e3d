package goroutine

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/ignatzorin/admarket-backend/internal/logger"
)

// SafeGo запускает горутину и логирует panic вместо падения процесса.
func SafeGo(name string, fn func()) {
	go func() {
		defer recoverPanic(name)
		fn()
	}()
}

// Detached запускает fn в фоне с собственным контекстом и таймаутом.
// Нужен для работы, которая должна пережить отмену HTTP запроса,
// например публикации событий после коммита.
func Detached(name string, timeout time.Duration, fn func(ctx context.Context)) {
	SafeGo(name, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	})
}

func recoverPanic(name string) {
	if r := recover(); r != nil {
		logger.Log.WithField("task", name).Errorf("panic in goroutine: %v\n%s", r, debug.Stack())
	}
}
