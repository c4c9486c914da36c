package whoop

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const callbackPage = "WHOOP connection received. You can return to the CLI and close this tab."

// callbackResult is the transient record of one redirect request's query
// parameters, written once by the listener and read once by the flow.
type callbackResult struct {
	code  string
	state string
	err   string
}

// callbackListener is a single-use HTTP server bound to a loopback address
// that captures exactly one redirect request and is then torn down. Requests
// to any other path get a 404 and are ignored for flow purposes.
type callbackListener struct {
	echo    *echo.Echo
	results chan callbackResult
	once    sync.Once
}

func newCallbackListener(path string) *callbackListener {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	l := &callbackListener{
		echo:    e,
		results: make(chan callbackResult, 1),
	}
	e.GET(path, l.handleCallback)
	return l
}

// start binds the listener. Binding happens synchronously so a port conflict
// surfaces here rather than inside the serve goroutine; the accept loop runs
// on its own goroutine.
func (l *callbackListener) start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.echo.Listener = listener

	go func() {
		if err := l.echo.Start(""); err != nil && err != http.ErrServerClosed {
			l.deliver(callbackResult{err: err.Error()})
		}
	}()
	return nil
}

func (l *callbackListener) handleCallback(c echo.Context) error {
	l.deliver(callbackResult{
		code:  c.QueryParam("code"),
		state: c.QueryParam("state"),
		err:   c.QueryParam("error"),
	})
	return c.String(http.StatusOK, callbackPage)
}

// deliver publishes the first result; later requests still get the
// confirmation page but cannot overwrite what the flow already read.
func (l *callbackListener) deliver(result callbackResult) {
	l.once.Do(func() {
		l.results <- result
	})
}

// wait blocks until the redirect arrives, the timeout elapses, or the
// context is cancelled. It returns false when no callback was received.
func (l *callbackListener) wait(ctx context.Context, timeout time.Duration) (callbackResult, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-l.results:
		return result, true
	case <-timer.C:
		return callbackResult{}, false
	case <-ctx.Done():
		return callbackResult{}, false
	}
}

// shutdown stops accepting and releases the port with a bounded grace
// period, so an abandoned flow never leaves the port occupied.
func (l *callbackListener) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = l.echo.Shutdown(ctx)
}
