package remote

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/logging"
)

// Subscriber maintains a websocket connection to the backend's change feed
// and invokes a callback for every event. The event payload is deliberately
// ignored: a notification only means "something may be stale, reconcile".
type Subscriber struct {
	baseURL  string
	token    TokenSource
	onChange func()
	log      logging.Logger
}

// NewSubscriber returns a Subscriber posting to onChange. Passing a nil
// logger disables logging.
func NewSubscriber(baseURL string, token TokenSource, onChange func(), log logging.Logger) *Subscriber {
	if log == nil {
		log = logging.Nop()
	}
	return &Subscriber{baseURL: baseURL, token: token, onChange: onChange, log: log}
}

// Run dials the event feed and reads until ctx is done, reconnecting with
// jittered exponential backoff after every failure. It returns only when ctx
// is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0 // retry forever; lifetime is bounded by ctx

	_ = backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if err := s.listen(ctx); err != nil {
			s.log.Warn(ctx, "event feed disconnected", "err", err)
			return err
		}
		return backoff.Permanent(ctx.Err())
	}, backoff.WithContext(policy, ctx))
}

func (s *Subscriber) listen(ctx context.Context) error {
	wsURL := strings.Replace(s.baseURL, "http", "ws", 1) + "/api/v1/events"

	header := http.Header{}
	if token := s.token(); token != "" {
		header.Set(common.AuthHeaderName, common.BearerPrefix+token)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	s.log.Info(ctx, "event feed connected")

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return err
		}
		s.onChange()
	}
}
