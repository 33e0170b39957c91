package graceful

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"taxEvents/internal/utils/logger/sl"
)

// Operation - шаг очистки при завершении.
type Operation func(ctx context.Context) error

// GracefulShutdown ждёт SIGINT/SIGTERM/SIGHUP, параллельно выполняет все операции в пределах timeout
// и закрывает возвращённый канал, когда они завершены.
func GracefulShutdown(ctx context.Context, timeout time.Duration, ops map[string]Operation, log *slog.Logger) <-chan struct{} {
	wait := make(chan struct{})

	go func() {
		s := make(chan os.Signal, 1)
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		<-s

		log.Info("shutting down")

		timeoutFunc := time.AfterFunc(timeout, func() {
			log.Error("timeout elapsed, force exit", slog.Duration("timeout", timeout))
			os.Exit(1)
		})
		defer timeoutFunc.Stop()

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var wg sync.WaitGroup
		for key, op := range ops {
			wg.Add(1)
			go func(key string, op Operation) {
				defer wg.Done()

				log.Info("cleaning up", slog.String("service", key))
				if err := op(shutdownCtx); err != nil {
					log.Error("clean up failed", slog.String("service", key), sl.Err(err))
					return
				}
				log.Info("gracefully shutdown", slog.String("service", key))
			}(key, op)
		}

		wg.Wait()
		close(wait)
	}()

	return wait
}
