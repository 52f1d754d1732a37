package puller

import (
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/walfollow/pkg/log"
)

// failureStreak rate-limits failure logging: the first failure after a
// successful connect is logged in full, the rest of the streak only at debug.
type failureStreak struct {
	warned   bool
	attempts int
}

func (f *failureStreak) reset() {
	f.warned = false
	f.attempts = 0
}

func stageMessage(stage string, err error) string {
	switch {
	case errors.Is(err, ErrIncompatibleFormat):
		return "master has unknown log format"
	case stage == StageRead:
		return "can't read row"
	default:
		return "can't connect to master"
	}
}

// retryNotice renders the reconnect delay the way operators expect it.
func retryNotice(d time.Duration) string {
	if d%time.Second == 0 {
		n := int64(d / time.Second)
		if n == 1 {
			return "will retry every 1 second"
		}
		return fmt.Sprintf("will retry every %d seconds", n)
	}
	return "will retry every " + d.String()
}

// fail reports a transport failure in stage.
func (p *Puller) fail(stage string, err error) {
	p.streak.attempts++
	p.setLastError(err)
	p.cfg.Metrics.RecordConnectionError(stage)

	fields := []log.Field{
		log.Int("attempt", p.streak.attempts),
		log.Err(err),
	}

	if p.streak.warned {
		p.logger.Debug(stageMessage(stage, err), fields...)
	} else {
		p.streak.warned = true
		p.logger.Error(stageMessage(stage, err), fields...)
		p.logger.Info(retryNotice(p.cfg.ReconnectDelay))
	}

	if p.cfg.Observer != nil {
		p.cfg.Observer.OnConnectionError(stage, err, p.streak.attempts)
	}
}
