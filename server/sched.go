// sched.go - Begrenzung paralleler und wartender Requests
package server

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

// ErrMaxQueue wird zurueckgegeben wenn die Warteschlange voll ist
var ErrMaxQueue = errors.New("server busy, please try again.  maximum pending requests exceeded")

// limiter laesst parallel Requests gleichzeitig laufen und queue weitere warten
type limiter struct {
	sem     *semaphore.Weighted
	pending atomic.Int64
	max     int64
}

func newLimiter(parallel, queue uint) *limiter {
	parallel = max(parallel, 1)
	return &limiter{
		sem: semaphore.NewWeighted(int64(parallel)),
		max: int64(parallel + queue),
	}
}

// acquire wartet auf einen freien Platz
// release muss genau einmal aufgerufen werden.
func (l *limiter) acquire(ctx context.Context) (release func(), err error) {
	if l.pending.Add(1) > l.max {
		l.pending.Add(-1)
		return nil, ErrMaxQueue
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		l.pending.Add(-1)
		return nil, err
	}

	return func() {
		l.sem.Release(1)
		l.pending.Add(-1)
	}, nil
}

// limit ist die Middleware fuer rechenintensive Endpunkte
func (s *Server) limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		release, err := s.limiter.acquire(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer release()

		c.Next()
	}
}
